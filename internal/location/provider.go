// Package location owns the device-location subscription lifecycle: permission
// state, start/stop, and fix callback dispatch.
package location

import (
	"context"
	"time"

	"github.com/stipator/stipator/internal/lib/geo"
)

// Fix is a single reported device position. Accuracy is in meters and may be
// zero when the positioning provider does not report one.
type Fix struct {
	Point      geo.Point `json:"point"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// SubscribeOptions configures the fix stream delivered by a Provider.
type SubscribeOptions struct {
	HighAccuracy bool
	MinInterval  time.Duration // minimum temporal spacing between fixes
	MinDistance  float64       // minimum spatial spacing between fixes, meters
}

// Subscription is a handle to an active fix stream.
type Subscription interface {
	Unsubscribe()
}

// Provider is the positioning capability the tracker builds on. A provider
// reports fixes for one device.
type Provider interface {
	// RequestPermissions asks for foreground and background location
	// capability and reports each grant separately.
	RequestPermissions(ctx context.Context) (foreground, background bool, err error)

	// HasPermissions reports whether both grants are currently held.
	HasPermissions(ctx context.Context) (bool, error)

	// CurrentFix returns the provider's current reading, or ok=false when no
	// reading is available (no signal, provider error). It never fails hard.
	CurrentFix(ctx context.Context) (Fix, bool)

	// Subscribe starts a continuous fix stream filtered by opts. The callback
	// may be invoked from arbitrary goroutines.
	Subscribe(opts SubscribeOptions, onFix func(Fix)) (Subscription, error)
}
