// Package alert turns trip alert events into outbound messages for the
// traveler's trusted contacts.
package alert

import (
	"context"
	"fmt"
	"log"

	"github.com/stipator/stipator/internal/lib/geo"
	"github.com/stipator/stipator/internal/trip"
)

// SendOutcome is one recipient's delivery result.
type SendOutcome struct {
	Recipient string
	Err       error
}

// Gateway is the outbound messaging capability: one text body to a list of
// phone numbers, with an independent outcome per recipient.
type Gateway interface {
	Send(ctx context.Context, recipients []string, body string) []SendOutcome
}

// Dispatcher templates alert events and submits them to the messaging
// gateway. Each recipient is dispatched independently; a failure for one
// never blocks or rolls back delivery to the others.
type Dispatcher struct {
	gateway Gateway
}

// NewDispatcher creates a dispatcher over the given messaging gateway.
func NewDispatcher(gateway Gateway) *Dispatcher {
	return &Dispatcher{gateway: gateway}
}

// Notify formats the event and fans it out to every recipient, returning the
// aggregate delivery counts. Deviation clearing and unknown kinds dispatch
// nothing.
func (d *Dispatcher) Notify(ctx context.Context, event trip.AlertEvent) trip.NotifyResult {
	body, ok := messageFor(event)
	if !ok || len(event.Recipients) == 0 {
		return trip.NotifyResult{}
	}

	var result trip.NotifyResult
	for _, outcome := range d.gateway.Send(ctx, event.Recipients, body) {
		if outcome.Err != nil {
			log.Printf("Failed to deliver %s alert to %s: %v", event.Kind, outcome.Recipient, outcome.Err)
			result.Failed++
		} else {
			result.Delivered++
		}
	}
	return result
}

// MapLink builds a shareable map URL for a coordinate.
func MapLink(p geo.Point) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%.5f,%.5f", p.Lat, p.Lng)
}

// messageFor renders the fixed human-readable template for the event's kind.
func messageFor(event trip.AlertEvent) (string, bool) {
	link := MapLink(event.Location)

	switch event.Kind {
	case trip.EventTripStarted:
		if event.Detail != "" {
			return fmt.Sprintf("🚕 %s started a trip to %s. Track live: %s", event.UserName, event.Detail, link), true
		}
		return fmt.Sprintf("🚕 %s started a trip. Track live: %s", event.UserName, link), true
	case trip.EventLocationCheckIn:
		return fmt.Sprintf("📍 %s location update (%s): %s", event.UserName, event.Timestamp.Format("3:04 PM"), link), true
	case trip.EventDeviationDetected:
		return fmt.Sprintf("⚠️ ROUTE DEVIATION: %s deviated from the expected route. Current location: %s", event.UserName, link), true
	case trip.EventPanic:
		return fmt.Sprintf("🚨 EMERGENCY: %s triggered panic alert! Current location: %s", event.UserName, link), true
	case trip.EventTripEnded:
		return fmt.Sprintf("✅ %s reached destination safely. Final location: %s", event.UserName, link), true
	case trip.EventStaleTrip:
		return fmt.Sprintf("⚠️ %s's trip has been active for over %s without completion. Please check on them. Last location: %s", event.UserName, event.Detail, link), true
	default:
		// DeviationCleared and anything unrecognized is never surfaced
		// externally.
		return "", false
	}
}
