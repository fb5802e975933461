package trip

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
	"sync"
	"time"

	prefaberrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/stipator/stipator/internal/lib/geo"
	"github.com/stipator/stipator/internal/lib/route"
	"github.com/stipator/stipator/internal/location"
)

// ErrNotActive is returned for operations that require an Active session.
var ErrNotActive = errors.New("trip is not active")

// SessionConfig carries the monitoring cadence and the deviation threshold
// snapshot taken from the user's preferences at trip start.
type SessionConfig struct {
	CheckInInterval       time.Duration // periodic location share to contacts
	DeviationPollInterval time.Duration // route adherence re-check
	ThresholdMeters       float64
}

// sessionDefaults fills unset config values.
func (c SessionConfig) withDefaults() SessionConfig {
	if c.CheckInInterval <= 0 {
		c.CheckInInterval = 2 * time.Minute
	}
	if c.DeviationPollInterval <= 0 {
		c.DeviationPollInterval = 30 * time.Second
	}
	if c.ThresholdMeters <= 0 {
		c.ThresholdMeters = route.DefaultThresholdMeters
	}
	return c
}

// Session monitors one active trip: it consumes fixes from the tracker,
// re-checks route adherence on a timer, shares periodic check-ins, and emits
// alert events. All state transitions for the trip (fix arrival, timer fire,
// panic, complete, cancel) are serialized behind one mutex, so concurrent
// timers and fix delivery can never interleave mid-transition.
type Session struct {
	tracker  *location.Tracker
	store    Store
	notifier Notifier
	cfg      SessionConfig

	userName   string
	recipients []string // read-only snapshot taken at session start

	mu            sync.Mutex
	trip          *Trip // authoritative copy while the session runs
	lastFix       *location.Fix
	deviating     bool // local edge-trigger state, feeds the UI banner
	started       bool
	staleNotified bool

	stopChan chan struct{}
}

// NewSession creates a session in its initializing state. The trip must
// already be persisted with StatusActive; recipients and threshold are
// snapshotted here and not re-read for the lifetime of the trip.
func NewSession(t *Trip, tracker *location.Tracker, store Store, notifier Notifier, userName string, recipients []string, cfg SessionConfig) *Session {
	return &Session{
		tracker:    tracker,
		store:      store,
		notifier:   notifier,
		cfg:        cfg.withDefaults(),
		userName:   userName,
		recipients: append([]string(nil), recipients...),
		trip:       t,
		stopChan:   make(chan struct{}),
	}
}

// Start subscribes to the tracker and launches the check-in and deviation
// poll timers. It may be called once; the session is Active afterwards.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.tracker.StartTracking(s.handleFix); err != nil {
		return err
	}

	go s.timerLoop(ctx, s.cfg.CheckInInterval, func() { s.checkIn(ctx) })
	go s.timerLoop(ctx, s.cfg.DeviationPollInterval, func() { s.pollDeviation(ctx) })

	return nil
}

// timerLoop fires fn on a fixed period until the session stops.
func (s *Session) timerLoop(ctx context.Context, interval time.Duration, fn func()) {
	defer func() {
		// Recover from any panics in the timer goroutine
		if r := recover(); r != nil {
			err, _ := prefaberrors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Trip timer: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// handleFix records an arriving fix as the latest known position. Fixes
// delivered after a terminal transition are dropped; the tracker is already
// stopped by then, this check closes the race with an in-flight callback.
func (s *Session) handleFix(fix location.Fix) {
	s.mu.Lock()
	if s.trip.Status != StatusActive {
		s.mu.Unlock()
		return
	}
	s.lastFix = &fix
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = time.Now()
	}
	s.trip.LastFixAt = fix.CapturedAt
	tripID := s.trip.ID
	s.mu.Unlock()

	// Persistence is best-effort per fix; the in-memory trip stays
	// authoritative and the next fix retries naturally.
	if err := s.store.Update(context.Background(), tripID, map[string]any{"last_fix_at": fix.CapturedAt}); err != nil {
		log.Printf("Failed to persist fix for trip %s: %v", tripID, err)
	}
}

// checkIn shares the most recent fix with contacts. A tick with no fix ever
// received is skipped: no alert with an undefined location is ever emitted.
func (s *Session) checkIn(ctx context.Context) {
	s.mu.Lock()
	if s.trip.Status != StatusActive || s.lastFix == nil {
		s.mu.Unlock()
		return
	}
	event := s.newEventLocked(EventLocationCheckIn, s.lastFix.Point)
	s.mu.Unlock()

	// Check-ins fail silently from the user's perspective: they are
	// automatic and repeat shortly.
	result := s.notifier.Notify(ctx, event)
	if result.Failed > 0 {
		log.Printf("Check-in for trip %s: %d delivered, %d failed", s.TripID(), result.Delivered, result.Failed)
	}
}

// pollDeviation re-runs route adherence against the latest fix. The detection
// is edge-triggered: one DeviationDetected per off-route excursion, and the
// trip's DeviationDetected flag stays set for the rest of the trip even if the
// traveler returns to route. Returning to route clears only the local state
// and emits nothing externally.
func (s *Session) pollDeviation(ctx context.Context) {
	s.mu.Lock()
	if s.trip.Status != StatusActive || s.lastFix == nil {
		s.mu.Unlock()
		return
	}

	c := route.Classify(s.lastFix.Point, s.trip.Route, s.cfg.ThresholdMeters)

	var event *AlertEvent
	var markDetected bool
	switch {
	case c.Deviating && !s.deviating:
		s.deviating = true
		if !s.trip.DeviationDetected {
			s.trip.DeviationDetected = true
			markDetected = true
		}
		ev := s.newEventLocked(EventDeviationDetected, s.lastFix.Point)
		event = &ev
	case !c.Deviating && s.deviating:
		s.deviating = false
	}
	tripID := s.trip.ID
	s.mu.Unlock()

	if markDetected {
		if err := s.store.Update(ctx, tripID, map[string]any{"deviation_detected": true}); err != nil {
			log.Printf("Failed to persist deviation flag for trip %s: %v", tripID, err)
		}
	}
	if event != nil {
		result := s.notifier.Notify(ctx, *event)
		log.Printf("Deviation alert for trip %s: %d delivered, %d failed", tripID, result.Delivered, result.Failed)
	}
}

// Panic emits an emergency alert using the latest known fix, regardless of
// timers or deviation state. It is always permitted while Active and reports
// a definitive delivery outcome to the initiating user.
func (s *Session) Panic(ctx context.Context) (NotifyResult, error) {
	s.mu.Lock()
	if s.trip.Status != StatusActive {
		s.mu.Unlock()
		return NotifyResult{}, ErrNotActive
	}
	event := s.newEventLocked(EventPanic, s.bestLocationLocked())
	s.mu.Unlock()

	return s.notifier.Notify(ctx, event), nil
}

// NotifyStale alerts contacts that the trip has been running for elapsed
// without completing. At most one stale alert is sent per trip; the second
// return reports whether an alert was dispatched.
func (s *Session) NotifyStale(ctx context.Context, elapsed string) (NotifyResult, bool) {
	s.mu.Lock()
	if s.trip.Status != StatusActive || s.staleNotified {
		s.mu.Unlock()
		return NotifyResult{}, false
	}
	s.staleNotified = true
	event := s.newEventLocked(EventStaleTrip, s.bestLocationLocked())
	event.Detail = elapsed
	s.mu.Unlock()

	return s.notifier.Notify(ctx, event), true
}

// Complete ends the trip as safely arrived: timers and tracker stop, the trip
// record is marked Completed, and contacts are told the traveler is safe.
// Idempotent no-op when already terminal.
func (s *Session) Complete(ctx context.Context) (NotifyResult, error) {
	return s.finish(ctx, StatusCompleted)
}

// Cancel ends the trip without requiring a final location; it may run before
// any fix has arrived. Idempotent no-op when already terminal.
func (s *Session) Cancel(ctx context.Context) (NotifyResult, error) {
	return s.finish(ctx, StatusCancelled)
}

// finish performs a terminal transition. Tracker unsubscription and timer
// shutdown happen before the terminal status becomes externally observable,
// so no fix arriving afterwards is processed.
func (s *Session) finish(ctx context.Context, terminal Status) (NotifyResult, error) {
	s.mu.Lock()
	if s.trip.Status != StatusActive {
		s.mu.Unlock()
		return NotifyResult{}, nil
	}

	s.tracker.StopTracking()
	close(s.stopChan)

	now := time.Now()
	s.trip.Status = terminal
	s.trip.EndedAt = &now
	tripID := s.trip.ID
	event := s.newEventLocked(EventTripEnded, s.bestLocationLocked())
	s.mu.Unlock()

	result := s.notifier.Notify(ctx, event)

	// Local terminal state is the source of truth; a store failure is
	// surfaced for retry, never rolled back.
	if err := s.store.Update(ctx, tripID, map[string]any{
		"status":   terminal,
		"ended_at": now,
	}); err != nil {
		return result, err
	}
	return result, nil
}

// bestLocationLocked returns the latest known fix, falling back to the trip
// origin when no fix has arrived yet. Callers hold s.mu.
func (s *Session) bestLocationLocked() geo.Point {
	if s.lastFix != nil {
		return s.lastFix.Point
	}
	return s.trip.Origin.Point
}

// newEventLocked builds an alert event from current state. Callers hold s.mu.
func (s *Session) newEventLocked(kind EventKind, loc geo.Point) AlertEvent {
	return AlertEvent{
		Kind:       kind,
		UserName:   s.userName,
		Location:   loc,
		Recipients: append([]string(nil), s.recipients...),
		Timestamp:  time.Now(),
	}
}

// TripID returns the monitored trip's id.
func (s *Session) TripID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trip.ID
}

// Status returns the monitored trip's current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trip.Status
}

// Deviating reports the live edge-trigger state for the trip owner's UI
// banner; unlike Trip.DeviationDetected it clears when back on route.
func (s *Session) Deviating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviating
}

// Snapshot returns a copy of the authoritative trip record.
func (s *Session) Snapshot() Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *s.trip
	t.Route = append(route.Route(nil), s.trip.Route...)
	return t
}
