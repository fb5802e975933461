// Package trip holds the trip record model and the session state machine that
// monitors one active trip.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/stipator/stipator/internal/lib/geo"
	"github.com/stipator/stipator/internal/lib/route"
)

// ErrNotFound is returned by a Store when no trip exists for the given id.
var ErrNotFound = errors.New("trip not found")

// Status is the trip lifecycle state. Completed and Cancelled are terminal;
// trips are archived on either, never physically deleted.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Place pairs a coordinate with its human-readable address.
type Place struct {
	Point   geo.Point `json:"point"`
	Address string    `json:"address"`
}

// Trip is one planned journey being monitored for a user. Exactly one trip may
// be Active per user at a time; that rule is enforced by the surrounding app.
type Trip struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	Origin            Place       `json:"origin"`
	Destination       Place       `json:"destination"`
	Route             route.Route `json:"route"`
	Status            Status      `json:"status"`
	DeviationDetected bool        `json:"deviation_detected"`
	StartedAt         time.Time   `json:"started_at"`
	EndedAt           *time.Time  `json:"ended_at,omitempty"`
	LastFixAt         time.Time   `json:"last_fix_at"`
}

// EventKind tags the alert event variants.
type EventKind string

const (
	EventTripStarted       EventKind = "TRIP_STARTED"
	EventLocationCheckIn   EventKind = "LOCATION_CHECK_IN"
	EventDeviationDetected EventKind = "DEVIATION_DETECTED"
	// EventDeviationCleared records a return to route. It updates local state
	// for the traveler's own UI but is never dispatched to contacts.
	EventDeviationCleared EventKind = "DEVIATION_CLEARED"
	EventPanic            EventKind = "PANIC"
	EventTripEnded        EventKind = "TRIP_ENDED"
	// EventStaleTrip flags a trip that has been Active far past its expected
	// duration without completing, so contacts can check on the traveler.
	EventStaleTrip EventKind = "STALE_TRIP"
)

// AlertEvent is an ephemeral notification trigger: constructed, dispatched,
// discarded. Persistence of a delivery log is an external concern.
type AlertEvent struct {
	Kind       EventKind `json:"kind"`
	UserName   string    `json:"user_name"`
	Location   geo.Point `json:"location"`
	Recipients []string  `json:"recipients"`
	Timestamp  time.Time `json:"timestamp"`
	// Detail carries kind-specific template context: the destination address
	// for TripStarted, the elapsed-time text for StaleTrip.
	Detail string `json:"detail,omitempty"`
}

// NotifyResult aggregates per-recipient delivery outcomes.
type NotifyResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Notifier delivers alert events to the traveler's contacts. One message per
// recipient; a failure for one recipient never blocks the others.
type Notifier interface {
	Notify(ctx context.Context, event AlertEvent) NotifyResult
}

// Contact is a trusted contact who receives this user's trip alerts.
type Contact struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
}

// ContactStore resolves a user's trusted contacts. The surrounding app keeps
// the list to at most five contacts per user.
type ContactStore interface {
	QueryByUser(ctx context.Context, userID string) ([]Contact, error)
}

// Store is the external trip-record document store. The in-memory session
// state stays authoritative while a store write is failing; writes are
// retried or surfaced, never rolled back locally.
type Store interface {
	Create(ctx context.Context, t *Trip) (string, error)
	Get(ctx context.Context, id string) (*Trip, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	QueryByUser(ctx context.Context, userID string) ([]*Trip, error)
}
