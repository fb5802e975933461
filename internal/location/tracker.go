package location

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrPermissionDenied is returned when the device lacks either the foreground
// or the background location grant. It is fatal to starting a trip.
var ErrPermissionDenied = errors.New("location permission denied")

// State is the tracker lifecycle state.
type State string

const (
	Unauthorized State = "UNAUTHORIZED"
	Authorized   State = "AUTHORIZED"
	Tracking     State = "TRACKING"
	Stopped      State = "STOPPED"
)

// Tracker owns one device's location subscription lifecycle. It is constructed
// per trip owner and must not be shared across trips.
type Tracker struct {
	provider Provider
	opts     SubscribeOptions

	mu    sync.Mutex
	state State
	sub   Subscription
	onFix func(Fix)
}

// NewTracker creates a tracker over the given positioning provider. The
// subscription options apply verbatim to every StartTracking call; the 30s/50m
// production spacing comes from configuration, and zero values mean
// unfiltered delivery.
func NewTracker(provider Provider, opts SubscribeOptions) *Tracker {
	return &Tracker{
		provider: provider,
		opts:     opts,
		state:    Unauthorized,
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Authorize requests foreground and background location capability. Both must
// be granted for tracking to start; a partial grant leaves the tracker
// Unauthorized and returns ErrPermissionDenied.
func (t *Tracker) Authorize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Unauthorized {
		return nil
	}

	if ok, err := t.provider.HasPermissions(ctx); err == nil && ok {
		t.state = Authorized
		return nil
	}

	foreground, background, err := t.provider.RequestPermissions(ctx)
	if err != nil {
		return fmt.Errorf("failed to request location permissions: %w", err)
	}
	if !foreground || !background {
		log.Printf("Location permission incomplete: foreground=%v background=%v", foreground, background)
		return ErrPermissionDenied
	}

	t.state = Authorized
	return nil
}

// StartTracking begins the continuous fix subscription and registers onFix as
// the single active callback. Calling it while already Tracking replaces the
// callback rather than queuing a second subscription.
func (t *Tracker) StartTracking(onFix func(Fix)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case Unauthorized:
		return ErrPermissionDenied
	case Tracking:
		// Replace the callback, keep the existing subscription.
		t.onFix = onFix
		return nil
	}

	t.onFix = onFix
	sub, err := t.provider.Subscribe(t.opts, t.dispatch)
	if err != nil {
		t.onFix = nil
		return fmt.Errorf("failed to subscribe to location updates: %w", err)
	}

	t.sub = sub
	t.state = Tracking
	return nil
}

// dispatch forwards a provider fix to the registered callback. The callback is
// read under the lock so StartTracking replacement is always observed; the
// call itself happens outside it so callbacks may use the tracker.
func (t *Tracker) dispatch(fix Fix) {
	t.mu.Lock()
	onFix := t.onFix
	active := t.state == Tracking
	t.mu.Unlock()

	if active && onFix != nil {
		onFix(fix)
	}
}

// StopTracking cancels the subscription and clears the callback. It is
// idempotent: stopping an already-stopped tracker is a no-op.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Tracking {
		if t.state != Stopped {
			t.state = Stopped
		}
		return
	}

	if t.sub != nil {
		t.sub.Unsubscribe()
		t.sub = nil
	}
	t.onFix = nil
	t.state = Stopped
}

// CurrentLocation performs a one-shot position read independent of the
// subscription state. Failure yields ok=false so callers can degrade
// gracefully (retry, or block trip start with a user-facing message).
func (t *Tracker) CurrentLocation(ctx context.Context) (Fix, bool) {
	return t.provider.CurrentFix(ctx)
}
