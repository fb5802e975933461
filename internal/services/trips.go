// Package services wires stores, clients, and trip sessions into the
// operations exposed over HTTP.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stipator/stipator/internal/config"
	"github.com/stipator/stipator/internal/lib/geo"
	"github.com/stipator/stipator/internal/lib/route"
	"github.com/stipator/stipator/internal/location"
	"github.com/stipator/stipator/internal/trip"
)

var (
	// ErrTripInProgress is returned when a user tries to start a second trip
	// while one is still active.
	ErrTripInProgress = errors.New("user already has an active trip")

	// ErrNoStartLocation is returned when no start location could be
	// determined; trip start is blocked so the user can retry.
	ErrNoStartLocation = errors.New("unable to determine start location")

	// ErrDestinationNotFound is returned when the destination address does not
	// geocode to a coordinate.
	ErrDestinationNotFound = errors.New("destination address not found")

	// ErrInvalidFix is returned for fixes with out-of-range coordinates.
	ErrInvalidFix = errors.New("invalid fix coordinates")
)

// Directions is the routing and geocoding provider used at trip start.
type Directions interface {
	ComputeRoute(ctx context.Context, origin, destination geo.Point) (string, error)
	Geocode(ctx context.Context, address string) (geo.Point, bool, error)
	ReverseGeocode(ctx context.Context, point geo.Point) (string, error)
}

// TripStore extends the session's store with the active-trip scan the stale
// sweeper needs.
type TripStore interface {
	trip.Store
	QueryActive(ctx context.Context) ([]*trip.Trip, error)
}

// StartTripRequest carries everything the device sends to begin a trip.
type StartTripRequest struct {
	UserID             string     `json:"user_id"`
	UserName           string     `json:"user_name"`
	DestinationAddress string     `json:"destination_address"`
	Origin             *geo.Point `json:"origin,omitempty"` // defaults to the device's current fix
	ForegroundGranted  bool       `json:"foreground_granted"`
	BackgroundGranted  bool       `json:"background_granted"`
	ThresholdMeters    float64    `json:"threshold_meters,omitempty"`
}

// StartTripResult reports the created trip and the outcome of the start alert.
type StartTripResult struct {
	Trip  trip.Trip         `json:"trip"`
	Alert trip.NotifyResult `json:"alert"`
}

// activeTrip pairs a running session with the fix feed that drives it.
type activeTrip struct {
	userID   string
	session  *trip.Session
	provider *location.FeedProvider
}

// TripService owns the registry of running trip sessions and the start/panic/
// complete/cancel operations against them.
type TripService struct {
	cfg        *config.Config
	directions Directions
	trips      TripStore
	contacts   trip.ContactStore
	notifier   trip.Notifier

	mu       sync.Mutex
	sessions map[string]*activeTrip // keyed by trip id
	starting map[string]bool        // users with a start in flight
}

// NewTripService creates the trip service.
func NewTripService(cfg *config.Config, directions Directions, trips TripStore, contacts trip.ContactStore, notifier trip.Notifier) *TripService {
	return &TripService{
		cfg:        cfg,
		directions: directions,
		trips:      trips,
		contacts:   contacts,
		notifier:   notifier,
		sessions:   make(map[string]*activeTrip),
		starting:   make(map[string]bool),
	}
}

// StartTrip validates permissions and inputs, resolves the route, persists the
// trip record, notifies contacts, and spins up a monitoring session. Route
// lookup failure is non-fatal: the trip starts in degraded mode with deviation
// checks disabled.
func (s *TripService) StartTrip(ctx context.Context, req StartTripRequest) (*StartTripResult, error) {
	// The reservation holds the one-active-trip-per-user rule across the
	// network calls below; a second concurrent start for the same user fails
	// immediately instead of racing to the registry insert.
	if err := s.reserveUser(req.UserID); err != nil {
		return nil, err
	}
	defer s.releaseUser(req.UserID)

	provider := location.NewFeedProvider()
	provider.ReportPermissions(req.ForegroundGranted, req.BackgroundGranted)
	if req.Origin != nil && req.Origin.Valid() {
		provider.Publish(location.Fix{Point: *req.Origin, CapturedAt: time.Now()})
	}

	tracker := location.NewTracker(provider, location.SubscribeOptions{
		HighAccuracy: true,
		MinInterval:  s.cfg.Tracking.MinInterval,
		MinDistance:  s.cfg.Tracking.MinDistanceMeters,
	})
	if err := tracker.Authorize(ctx); err != nil {
		return nil, err
	}

	fix, ok := tracker.CurrentLocation(ctx)
	if !ok {
		return nil, ErrNoStartLocation
	}
	origin := fix.Point

	destination, found, err := s.directions.Geocode(ctx, req.DestinationAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode destination: %w", err)
	}
	if !found {
		return nil, ErrDestinationNotFound
	}

	originAddress, err := s.directions.ReverseGeocode(ctx, origin)
	if err != nil {
		log.Printf("Reverse geocode failed for trip start: %v", err)
		originAddress = "Unknown location"
	}

	var rte route.Route
	encoded, err := s.directions.ComputeRoute(ctx, origin, destination)
	switch {
	case err != nil:
		log.Printf("Route lookup failed, deviation checking disabled: %v", err)
	case encoded == "":
		log.Printf("No route between origin and destination, deviation checking disabled")
	default:
		rte = route.Route(geo.DecodePolyline(encoded))
	}

	contacts, err := s.contacts.QueryByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	recipients := make([]string, 0, len(contacts))
	for _, c := range contacts {
		recipients = append(recipients, c.Phone)
	}

	t := &trip.Trip{
		UserID:      req.UserID,
		Origin:      trip.Place{Point: origin, Address: originAddress},
		Destination: trip.Place{Point: destination, Address: req.DestinationAddress},
		Route:       rte,
		Status:      trip.StatusActive,
		StartedAt:   time.Now(),
	}
	id, err := s.trips.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}
	t.ID = id

	session := trip.NewSession(t, tracker, s.trips, s.notifier, req.UserName, recipients, trip.SessionConfig{
		CheckInInterval:       s.cfg.Monitoring.CheckInInterval,
		DeviationPollInterval: s.cfg.Monitoring.DeviationPollInterval,
		ThresholdMeters:       s.thresholdFor(req.ThresholdMeters),
	})
	// Timers must outlive the start request.
	if err := session.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("failed to start monitoring: %w", err)
	}

	s.mu.Lock()
	s.sessions[id] = &activeTrip{userID: req.UserID, session: session, provider: provider}
	s.mu.Unlock()

	result := s.notifier.Notify(ctx, trip.AlertEvent{
		Kind:       trip.EventTripStarted,
		UserName:   req.UserName,
		Location:   origin,
		Recipients: recipients,
		Timestamp:  time.Now(),
		Detail:     req.DestinationAddress,
	})
	log.Printf("Started trip %s for user %s: %d contacts notified, %d failed", id, req.UserID, result.Delivered, result.Failed)

	return &StartTripResult{Trip: session.Snapshot(), Alert: result}, nil
}

// thresholdFor picks the request's deviation threshold or the configured
// default.
func (s *TripService) thresholdFor(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	return s.cfg.Monitoring.DeviationThresholdMeters
}

// reserveUser claims the user's single active-trip slot for the duration of a
// start attempt. It fails if the user has a running session or another start
// in flight.
func (s *TripService) reserveUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.starting[userID] {
		return ErrTripInProgress
	}
	for _, at := range s.sessions {
		if at.userID == userID && at.session.Status() == trip.StatusActive {
			return ErrTripInProgress
		}
	}
	s.starting[userID] = true
	return nil
}

// releaseUser clears the start reservation. On a successful start the session
// is already registered by the time this runs, so the slot stays occupied.
func (s *TripService) releaseUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.starting, userID)
}

// ReportFix feeds a device-posted fix into the trip's location feed. The
// subscription spacing filters decide whether the session sees it.
func (s *TripService) ReportFix(ctx context.Context, tripID string, fix location.Fix) error {
	at, err := s.lookup(ctx, tripID)
	if err != nil {
		return err
	}
	if !fix.Point.Valid() {
		return fmt.Errorf("%w: %.5f,%.5f", ErrInvalidFix, fix.Point.Lat, fix.Point.Lng)
	}
	at.provider.Publish(fix)
	return nil
}

// Panic triggers an emergency alert for the trip and reports the delivery
// outcome.
func (s *TripService) Panic(ctx context.Context, tripID string) (trip.NotifyResult, error) {
	at, err := s.lookup(ctx, tripID)
	if err != nil {
		return trip.NotifyResult{}, err
	}
	return at.session.Panic(ctx)
}

// Complete ends the trip as safely arrived and retires its session.
func (s *TripService) Complete(ctx context.Context, tripID string) (trip.NotifyResult, error) {
	return s.end(ctx, tripID, trip.StatusCompleted)
}

// Cancel ends the trip without a final destination check and retires its
// session.
func (s *TripService) Cancel(ctx context.Context, tripID string) (trip.NotifyResult, error) {
	return s.end(ctx, tripID, trip.StatusCancelled)
}

func (s *TripService) end(ctx context.Context, tripID string, terminal trip.Status) (trip.NotifyResult, error) {
	at, err := s.lookup(ctx, tripID)
	if errors.Is(err, trip.ErrNotActive) {
		// Already ended; terminal transitions are idempotent no-ops.
		return trip.NotifyResult{}, nil
	}
	if err != nil {
		return trip.NotifyResult{}, err
	}

	var result trip.NotifyResult
	if terminal == trip.StatusCompleted {
		result, err = at.session.Complete(ctx)
	} else {
		result, err = at.session.Cancel(ctx)
	}

	s.mu.Lock()
	delete(s.sessions, tripID)
	s.mu.Unlock()

	return result, err
}

// GetTrip returns the trip record plus the live deviation state for active
// trips. Archived trips come straight from the store.
func (s *TripService) GetTrip(ctx context.Context, tripID string) (*trip.Trip, bool, error) {
	s.mu.Lock()
	at, ok := s.sessions[tripID]
	s.mu.Unlock()
	if ok {
		snapshot := at.session.Snapshot()
		return &snapshot, at.session.Deviating(), nil
	}

	t, err := s.trips.Get(ctx, tripID)
	if err != nil {
		return nil, false, err
	}
	return t, false, nil
}

// ListTrips returns the user's trip history, newest first.
func (s *TripService) ListTrips(ctx context.Context, userID string) ([]*trip.Trip, error) {
	return s.trips.QueryByUser(ctx, userID)
}

// lookup resolves an active session, distinguishing unknown trips from ones
// that already ended.
func (s *TripService) lookup(ctx context.Context, tripID string) (*activeTrip, error) {
	s.mu.Lock()
	at, ok := s.sessions[tripID]
	s.mu.Unlock()
	if ok {
		return at, nil
	}

	if _, err := s.trips.Get(ctx, tripID); err != nil {
		return nil, err
	}
	return nil, trip.ErrNotActive
}

// notifyStaleTrips scans the store for trips still running past maxAge and
// alerts their contacts. Each trip is flagged at most once.
func (s *TripService) notifyStaleTrips(ctx context.Context, maxAge time.Duration) {
	active, err := s.trips.QueryActive(ctx)
	if err != nil {
		log.Printf("Stale trip sweep failed to query active trips: %v", err)
		return
	}

	for _, t := range active {
		age := time.Since(t.StartedAt)
		if age <= maxAge {
			continue
		}
		s.mu.Lock()
		at, ok := s.sessions[t.ID]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if result, sent := at.session.NotifyStale(ctx, elapsedText(age)); sent {
			log.Printf("Stale trip %s flagged after %s: %d delivered, %d failed", t.ID, age.Round(time.Minute), result.Delivered, result.Failed)
		}
	}
}

// elapsedText renders a duration the way the alert message reads it ("active
// for over <elapsed>").
func elapsedText(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
