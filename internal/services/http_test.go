package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stipator/stipator/internal/trip"
)

func newTestHandler(t *testing.T) (*TripHandler, *recordingNotifier) {
	t.Helper()
	svc, notifier, _ := newTestService(t, &fakeDirections{dest: testDest, destFound: true, reverse: "x"})
	return NewTripHandler(svc), notifier
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func startTripJSON(t *testing.T, h http.Handler) string {
	t.Helper()
	body := fmt.Sprintf(`{
		"user_id": "user-1",
		"user_name": "Alex",
		"destination_address": "123 Main St, Murphys, CA",
		"origin": {"lat": %f, "lng": %f},
		"foreground_granted": true,
		"background_granted": true
	}`, testOrigin.Lat, testOrigin.Lng)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/trips", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result StartTripResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.Trip.ID)
	return result.Trip.ID
}

func TestHTTPStartAndCompleteTrip(t *testing.T) {
	h, _ := newTestHandler(t)
	id := startTripJSON(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/trips/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got tripResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, trip.StatusActive, got.Trip.Status)
	assert.False(t, got.Deviating)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/trips/"+id+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result trip.NotifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Delivered)
}

func TestHTTPReportFixAndPanic(t *testing.T) {
	h, notifier := newTestHandler(t)
	id := startTripJSON(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/trips/"+id+"/fixes", `{"lat": 38.09, "lng": -120.50}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/trips/"+id+"/panic", "")
	require.Equal(t, http.StatusOK, rec.Code)

	kinds := notifier.kinds()
	assert.Equal(t, trip.EventPanic, kinds[len(kinds)-1])
}

func TestHTTPListTrips(t *testing.T) {
	h, _ := newTestHandler(t)
	id := startTripJSON(t, h)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/trips/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/trips?user_id=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Trips []trip.Trip `json:"trips"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Trips, 1)
	assert.Equal(t, trip.StatusCancelled, got.Trips[0].Status)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/trips", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPErrorMapping(t *testing.T) {
	h, _ := newTestHandler(t)

	// Unknown trip.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/trips/nope/panic", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed body.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/trips", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing required fields.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/trips", `{"user_name": "Alex"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing location permission.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/trips", `{
		"user_id": "user-9",
		"destination_address": "somewhere",
		"foreground_granted": true
	}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown action.
	id := startTripJSON(t, h)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/trips/"+id+"/teleport", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Out-of-range coordinates.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/trips/"+id+"/fixes", `{"lat": 123, "lng": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Second active trip for the same user.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/trips", fmt.Sprintf(`{
		"user_id": "user-1",
		"destination_address": "somewhere else",
		"origin": {"lat": %f, "lng": %f},
		"foreground_granted": true,
		"background_granted": true
	}`, testOrigin.Lat, testOrigin.Lng))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
