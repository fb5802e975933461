// Package googlemaps implements the routing/geocoding provider capability
// over the Google Routes and Geocoding APIs.
package googlemaps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stipator/stipator/internal/lib/geo"
)

// Client provides access to the Google Routes API v2 and the Geocoding API.
type Client struct {
	apiKey       string
	httpClient   *http.Client
	routesURL    string
	geocodingURL string
}

// NewClient creates a routing/geocoding client. Calls are bounded by a 15s
// timeout; a timeout is an ordinary recoverable failure, not a crash.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:       apiKey,
		routesURL:    "https://routes.googleapis.com",
		geocodingURL: "https://maps.googleapis.com",
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ComputeRoute returns the encoded polyline of a driving route between two
// coordinates. An empty polyline with no error means the provider had no
// route; callers treat that as "no route data" and run the trip with
// deviation checking disabled.
func (c *Client) ComputeRoute(ctx context.Context, origin, destination geo.Point) (string, error) {
	requestBody := map[string]any{
		"origin": map[string]any{
			"location": map[string]any{
				"latLng": map[string]any{
					"latitude":  origin.Lat,
					"longitude": origin.Lng,
				},
			},
		},
		"destination": map[string]any{
			"location": map[string]any{
				"latLng": map[string]any{
					"latitude":  destination.Lat,
					"longitude": destination.Lng,
				},
			},
		},
		"travelMode": "DRIVE",
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.routesURL+"/directions/v2:computeRoutes", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	// The field mask header is required or the API rejects the call.
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", "routes.polyline.encodedPolyline")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return "", fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("routes API error %d: %s", resp.StatusCode, string(body))
	}

	var response routesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Routes) == 0 {
		return "", nil
	}
	return response.Routes[0].Polyline.EncodedPolyline, nil
}

// Geocode resolves an address to a coordinate. ok=false means the provider
// found nothing for the address.
func (c *Client) Geocode(ctx context.Context, address string) (geo.Point, bool, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.apiKey)

	response, err := c.geocode(ctx, params)
	if err != nil {
		return geo.Point{}, false, err
	}
	if len(response.Results) == 0 {
		return geo.Point{}, false, nil
	}

	loc := response.Results[0].Geometry.Location
	return geo.Point{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}

// ReverseGeocode resolves a coordinate to a human-readable address, falling
// back to "Unknown location" when the provider has no result.
func (c *Client) ReverseGeocode(ctx context.Context, point geo.Point) (string, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%.6f,%.6f", point.Lat, point.Lng))
	params.Set("key", c.apiKey)

	response, err := c.geocode(ctx, params)
	if err != nil {
		return "", err
	}
	if len(response.Results) == 0 {
		return "Unknown location", nil
	}
	return response.Results[0].FormattedAddress, nil
}

// geocode performs one Geocoding API call with the given query parameters.
func (c *Client) geocode(ctx context.Context, params url.Values) (*geocodingResponse, error) {
	requestURL := fmt.Sprintf("%s/maps/api/geocode/json?%s", c.geocodingURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("geocoding API error %d: %s", resp.StatusCode, string(body))
	}

	var response geocodingResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// ZERO_RESULTS is a valid empty answer; other non-OK statuses are errors.
	if response.Status != "OK" && response.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("geocoding API status %s: %s", response.Status, response.ErrorMessage)
	}
	return &response, nil
}

// routesResponse is the Routes API response structure, limited to the fields
// requested by the field mask.
type routesResponse struct {
	Routes []struct {
		Polyline struct {
			EncodedPolyline string `json:"encodedPolyline"`
		} `json:"polyline"`
	} `json:"routes"`
}

// geocodingResponse is the Geocoding API response structure.
type geocodingResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}
