// Package store provides in-memory document stores for trip records and
// trusted contacts. They stand in for the app's hosted document store behind
// the same get/query/update operations.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stipator/stipator/internal/trip"
)

// MaxContactsPerUser caps the trusted contact list.
const MaxContactsPerUser = 5

// ErrTooManyContacts is returned by Add once a user's list is at the cap.
var ErrTooManyContacts = errors.New("contact list is full")

// ErrContactNotFound is returned by Remove for an unknown contact id.
var ErrContactNotFound = errors.New("contact not found")

// TripStore is a thread-safe in-memory trip.Store. Trips are archived, never
// deleted; terminal trips stay queryable.
type TripStore struct {
	mu    sync.RWMutex
	trips map[string]*trip.Trip
}

// NewTripStore creates an empty trip store.
func NewTripStore() *TripStore {
	return &TripStore{trips: make(map[string]*trip.Trip)}
}

// Create persists a new trip record, assigning an id if the caller left it
// empty, and returns the id.
func (s *TripStore) Create(ctx context.Context, t *trip.Trip) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := s.trips[t.ID]; exists {
		return "", fmt.Errorf("trip %s already exists", t.ID)
	}

	copied := copyTrip(t)
	s.trips[t.ID] = &copied
	return t.ID, nil
}

// Get returns a copy of the stored trip, or trip.ErrNotFound.
func (s *TripStore) Get(ctx context.Context, id string) (*trip.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.trips[id]
	if !exists {
		return nil, trip.ErrNotFound
	}
	copied := copyTrip(stored)
	return &copied, nil
}

// Update applies a partial field map to the stored record. Unknown fields are
// rejected so a typo can't silently drop a write.
func (s *TripStore) Update(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.trips[id]
	if !exists {
		return trip.ErrNotFound
	}

	for key, value := range fields {
		switch key {
		case "status":
			status, ok := value.(trip.Status)
			if !ok {
				return fmt.Errorf("field %q: expected trip.Status, got %T", key, value)
			}
			stored.Status = status
		case "ended_at":
			endedAt, ok := value.(time.Time)
			if !ok {
				return fmt.Errorf("field %q: expected time.Time, got %T", key, value)
			}
			stored.EndedAt = &endedAt
		case "deviation_detected":
			detected, ok := value.(bool)
			if !ok {
				return fmt.Errorf("field %q: expected bool, got %T", key, value)
			}
			stored.DeviationDetected = detected
		case "last_fix_at":
			at, ok := value.(time.Time)
			if !ok {
				return fmt.Errorf("field %q: expected time.Time, got %T", key, value)
			}
			stored.LastFixAt = at
		default:
			return fmt.Errorf("unknown trip field %q", key)
		}
	}
	return nil
}

// QueryByUser returns copies of all trips (any status) for the user, newest
// first by start time.
func (s *TripStore) QueryByUser(ctx context.Context, userID string) ([]*trip.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trips []*trip.Trip
	for _, stored := range s.trips {
		if stored.UserID == userID {
			copied := copyTrip(stored)
			trips = append(trips, &copied)
		}
	}
	sortTripsByStart(trips)
	return trips, nil
}

// QueryActive returns copies of all trips still in StatusActive, across users.
// The stale-trip sweeper scans these.
func (s *TripStore) QueryActive(ctx context.Context) ([]*trip.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trips []*trip.Trip
	for _, stored := range s.trips {
		if stored.Status == trip.StatusActive {
			copied := copyTrip(stored)
			trips = append(trips, &copied)
		}
	}
	sortTripsByStart(trips)
	return trips, nil
}

func copyTrip(t *trip.Trip) trip.Trip {
	copied := *t
	copied.Route = append(copied.Route[:0:0], t.Route...)
	if t.EndedAt != nil {
		endedAt := *t.EndedAt
		copied.EndedAt = &endedAt
	}
	return copied
}

func sortTripsByStart(trips []*trip.Trip) {
	sort.Slice(trips, func(i, j int) bool {
		return trips[i].StartedAt.After(trips[j].StartedAt)
	})
}

// ContactStore is a thread-safe in-memory trip.ContactStore.
type ContactStore struct {
	mu       sync.RWMutex
	contacts map[string][]trip.Contact // keyed by user id
}

// NewContactStore creates an empty contact store.
func NewContactStore() *ContactStore {
	return &ContactStore{contacts: make(map[string][]trip.Contact)}
}

// Add registers a trusted contact for a user, enforcing the per-user cap.
func (s *ContactStore) Add(ctx context.Context, c trip.Contact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.contacts[c.UserID]
	if len(existing) >= MaxContactsPerUser {
		return "", fmt.Errorf("user %s already has %d contacts: %w", c.UserID, MaxContactsPerUser, ErrTooManyContacts)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.contacts[c.UserID] = append(existing, c)
	return c.ID, nil
}

// QueryByUser returns the user's trusted contacts.
func (s *ContactStore) QueryByUser(ctx context.Context, userID string) ([]trip.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]trip.Contact(nil), s.contacts[userID]...), nil
}

// Remove deletes one of the user's contacts by id.
func (s *ContactStore) Remove(ctx context.Context, userID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.contacts[userID]
	for i, c := range existing {
		if c.ID == contactID {
			s.contacts[userID] = append(existing[:i:i], existing[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("contact %s: %w", contactID, ErrContactNotFound)
}
