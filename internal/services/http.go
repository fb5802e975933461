package services

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/stipator/stipator/internal/lib/geo"
	"github.com/stipator/stipator/internal/location"
	"github.com/stipator/stipator/internal/trip"
)

// TripHandler exposes the trip service over JSON HTTP:
//
//	POST /api/v1/trips                  start a trip
//	GET  /api/v1/trips?user_id={id}     list a user's trips, newest first
//	GET  /api/v1/trips/{id}             fetch one trip
//	POST /api/v1/trips/{id}/fixes       report a device fix
//	POST /api/v1/trips/{id}/panic       trigger an emergency alert
//	POST /api/v1/trips/{id}/complete    mark safely arrived
//	POST /api/v1/trips/{id}/cancel      cancel the trip
type TripHandler struct {
	trips *TripService
}

// NewTripHandler creates the HTTP handler for the trip service.
func NewTripHandler(trips *TripService) *TripHandler {
	return &TripHandler{trips: trips}
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

// fixRequest is the body of POST /trips/{id}/fixes.
type fixRequest struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// tripResponse wraps a trip record with its live deviation state.
type tripResponse struct {
	Trip      trip.Trip `json:"trip"`
	Deviating bool      `json:"deviating"`
}

// ServeHTTP routes /api/v1/trips requests.
func (h *TripHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/api/v1/trips")
	if !ok {
		http.NotFound(w, r)
		return
	}
	rest = strings.Trim(rest, "/")

	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			h.startTrip(w, r)
		case http.MethodGet:
			h.listTrips(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getTrip(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.tripAction(w, r, parts[0], parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (h *TripHandler) startTrip(w http.ResponseWriter, r *http.Request) {
	var req StartTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.DestinationAddress == "" {
		writeError(w, http.StatusBadRequest, "user_id and destination_address are required")
		return
	}

	result, err := h.trips.StartTrip(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *TripHandler) listTrips(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	trips, err := h.trips.ListTrips(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": trips})
}

func (h *TripHandler) getTrip(w http.ResponseWriter, r *http.Request, tripID string) {
	t, deviating, err := h.trips.GetTrip(r.Context(), tripID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tripResponse{Trip: *t, Deviating: deviating})
}

func (h *TripHandler) tripAction(w http.ResponseWriter, r *http.Request, tripID, action string) {
	switch action {
	case "fixes":
		var req fixRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		fix := location.Fix{
			Point:      geo.Point{Lat: req.Lat, Lng: req.Lng},
			Accuracy:   req.Accuracy,
			CapturedAt: req.CapturedAt,
		}
		if err := h.trips.ReportFix(r.Context(), tripID, fix); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})

	case "panic", "complete", "cancel":
		var result trip.NotifyResult
		var err error
		switch action {
		case "panic":
			result, err = h.trips.Panic(r.Context(), tripID)
		case "complete":
			result, err = h.trips.Complete(r.Context(), tripID)
		case "cancel":
			result, err = h.trips.Cancel(r.Context(), tripID)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		http.NotFound(w, r)
	}
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trip.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrNotActive), errors.Is(err, ErrTripInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, location.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNoStartLocation), errors.Is(err, ErrDestinationNotFound), errors.Is(err, ErrInvalidFix):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
