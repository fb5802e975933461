package location

import (
	"context"
	"sync"
	"time"

	"github.com/stipator/stipator/internal/lib/geo"
)

// FeedProvider is a Provider fed by device reports posted over the wire. The
// device pushes its permission state once and its position repeatedly; the
// provider turns those pushes into subscription callbacks, applying each
// subscription's temporal and spatial spacing filters.
type FeedProvider struct {
	mu         sync.Mutex
	foreground bool
	background bool
	lastFix    *Fix
	subs       map[int]*feedSubscription
	nextID     int
}

type feedSubscription struct {
	provider *FeedProvider
	id       int
	opts     SubscribeOptions
	onFix    func(Fix)

	lastDelivered   geo.Point
	lastDeliveredAt time.Time
	delivered       bool
}

// NewFeedProvider creates an empty provider: no permissions reported and no
// fix seen yet.
func NewFeedProvider() *FeedProvider {
	return &FeedProvider{subs: make(map[int]*feedSubscription)}
}

// ReportPermissions records the device's current permission grants.
func (p *FeedProvider) ReportPermissions(foreground, background bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.foreground = foreground
	p.background = background
}

// Publish ingests a device-reported fix, remembers it as the current reading,
// and fans it out to subscriptions whose spacing filters pass.
func (p *FeedProvider) Publish(fix Fix) {
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = time.Now()
	}

	p.mu.Lock()
	p.lastFix = &fix

	var deliver []func(Fix)
	for _, sub := range p.subs {
		if sub.accepts(fix) {
			sub.lastDelivered = fix.Point
			sub.lastDeliveredAt = fix.CapturedAt
			sub.delivered = true
			deliver = append(deliver, sub.onFix)
		}
	}
	p.mu.Unlock()

	for _, onFix := range deliver {
		onFix(fix)
	}
}

// accepts applies the subscription's minimum spacing filters: a fix is
// delivered only once both the temporal and the spatial minimum have passed
// since the last delivery. The first fix after subscribing always passes.
// Callers hold the provider lock.
func (s *feedSubscription) accepts(fix Fix) bool {
	if !s.delivered {
		return true
	}
	if fix.CapturedAt.Sub(s.lastDeliveredAt) < s.opts.MinInterval {
		return false
	}
	return geo.DistanceMeters(fix.Point, s.lastDelivered) >= s.opts.MinDistance
}

// RequestPermissions reports the grants the device last pushed. There is no
// prompt to drive from the server side, so requesting and checking coincide.
func (p *FeedProvider) RequestPermissions(ctx context.Context) (bool, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.foreground, p.background, nil
}

// HasPermissions reports whether both grants are held.
func (p *FeedProvider) HasPermissions(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.foreground && p.background, nil
}

// CurrentFix returns the most recently published fix, if any.
func (p *FeedProvider) CurrentFix(ctx context.Context) (Fix, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastFix == nil {
		return Fix{}, false
	}
	return *p.lastFix, true
}

// Subscribe registers a filtered fix stream.
func (p *FeedProvider) Subscribe(opts SubscribeOptions, onFix func(Fix)) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	sub := &feedSubscription{
		provider: p,
		id:       p.nextID,
		opts:     opts,
		onFix:    onFix,
	}
	p.subs[sub.id] = sub
	return sub, nil
}

// Unsubscribe removes the subscription; no callbacks fire after it returns
// from the provider's perspective.
func (s *feedSubscription) Unsubscribe() {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	delete(s.provider.subs, s.id)
}
