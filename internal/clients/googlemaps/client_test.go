package googlemaps

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stipator/stipator/internal/lib/geo"
)

func TestClient_ComputeRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/directions/v2:computeRoutes", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Equal(t, "routes.polyline.encodedPolyline", r.Header.Get("X-Goog-FieldMask"))

		fmt.Fprint(w, `{"routes":[{"polyline":{"encodedPolyline":"_p~iF~ps|U_ulLnnqC"}}]}`)
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.routesURL = server.URL

	encoded, err := client.ComputeRoute(context.Background(),
		geo.Point{Lat: 38.0675, Lng: -120.5436},
		geo.Point{Lat: 38.1391, Lng: -120.4561})
	require.NoError(t, err)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC", encoded)
}

func TestClient_ComputeRoute_NoRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"routes":[]}`)
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.routesURL = server.URL

	encoded, err := client.ComputeRoute(context.Background(), geo.Point{}, geo.Point{})
	require.NoError(t, err, "No route is a valid empty answer, not a failure")
	assert.Empty(t, encoded)
}

func TestClient_ComputeRoute_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.routesURL = server.URL

	_, err := client.ComputeRoute(context.Background(), geo.Point{}, geo.Point{})
	assert.Error(t, err)
}

func TestClient_Geocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		assert.Equal(t, "Murphys, CA", r.URL.Query().Get("address"))

		fmt.Fprint(w, `{"status":"OK","results":[{"formatted_address":"Murphys, CA 95247, USA","geometry":{"location":{"lat":38.1391,"lng":-120.4561}}}]}`)
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.geocodingURL = server.URL

	point, ok, err := client.Geocode(context.Background(), "Murphys, CA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 38.1391, point.Lat, 1e-9)
	assert.InDelta(t, -120.4561, point.Lng, 1e-9)
}

func TestClient_Geocode_ZeroResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.geocodingURL = server.URL

	_, ok, err := client.Geocode(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ReverseGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "38.067500,-120.543600", r.URL.Query().Get("latlng"))
		fmt.Fprint(w, `{"status":"OK","results":[{"formatted_address":"Angels Camp, CA 95222, USA","geometry":{"location":{"lat":38.0675,"lng":-120.5436}}}]}`)
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.geocodingURL = server.URL

	address, err := client.ReverseGeocode(context.Background(), geo.Point{Lat: 38.0675, Lng: -120.5436})
	require.NoError(t, err)
	assert.Equal(t, "Angels Camp, CA 95222, USA", address)
}

func TestClient_ReverseGeocode_Fallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
	}))
	defer server.Close()

	client := NewClient("test-key")
	client.geocodingURL = server.URL

	address, err := client.ReverseGeocode(context.Background(), geo.Point{})
	require.NoError(t, err)
	assert.Equal(t, "Unknown location", address)
}
