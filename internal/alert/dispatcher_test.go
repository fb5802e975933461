package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stipator/stipator/internal/lib/geo"
	"github.com/stipator/stipator/internal/trip"
)

type fakeGateway struct {
	rejected map[string]error
	sent     []string // bodies, one per Send call
}

func (f *fakeGateway) Send(_ context.Context, recipients []string, body string) []SendOutcome {
	f.sent = append(f.sent, body)
	outcomes := make([]SendOutcome, len(recipients))
	for i, r := range recipients {
		outcomes[i] = SendOutcome{Recipient: r, Err: f.rejected[r]}
	}
	return outcomes
}

func testEvent(kind trip.EventKind) trip.AlertEvent {
	return trip.AlertEvent{
		Kind:       kind,
		UserName:   "Dana",
		Location:   geo.Point{Lat: 38.06750, Lng: -120.54360},
		Recipients: []string{"+15550001", "+15550002", "+15550003"},
		Timestamp:  time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC),
	}
}

func TestDispatcher_PartialFailure(t *testing.T) {
	gateway := &fakeGateway{rejected: map[string]error{"+15550002": errors.New("undeliverable")}}
	dispatcher := NewDispatcher(gateway)

	result := dispatcher.Notify(context.Background(), testEvent(trip.EventPanic))

	assert.Equal(t, trip.NotifyResult{Delivered: 2, Failed: 1}, result,
		"One rejected recipient must not block the others")
}

func TestDispatcher_Templates(t *testing.T) {
	tests := []struct {
		kind   trip.EventKind
		detail string
		want   string
	}{
		{trip.EventTripStarted, "Murphys, CA", "🚕 Dana started a trip to Murphys, CA. Track live: https://www.google.com/maps?q=38.06750,-120.54360"},
		{trip.EventTripStarted, "", "🚕 Dana started a trip. Track live: https://www.google.com/maps?q=38.06750,-120.54360"},
		{trip.EventLocationCheckIn, "", "📍 Dana location update (3:09 PM): https://www.google.com/maps?q=38.06750,-120.54360"},
		{trip.EventDeviationDetected, "", "⚠️ ROUTE DEVIATION: Dana deviated from the expected route. Current location: https://www.google.com/maps?q=38.06750,-120.54360"},
		{trip.EventPanic, "", "🚨 EMERGENCY: Dana triggered panic alert! Current location: https://www.google.com/maps?q=38.06750,-120.54360"},
		{trip.EventTripEnded, "", "✅ Dana reached destination safely. Final location: https://www.google.com/maps?q=38.06750,-120.54360"},
		{trip.EventStaleTrip, "4 hours", "⚠️ Dana's trip has been active for over 4 hours without completion. Please check on them. Last location: https://www.google.com/maps?q=38.06750,-120.54360"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			gateway := &fakeGateway{}
			event := testEvent(tt.kind)
			event.Detail = tt.detail

			result := NewDispatcher(gateway).Notify(context.Background(), event)

			assert.Equal(t, 3, result.Delivered)
			require.Len(t, gateway.sent, 1)
			assert.Equal(t, tt.want, gateway.sent[0])
		})
	}
}

func TestDispatcher_DeviationClearedNeverDispatched(t *testing.T) {
	gateway := &fakeGateway{}
	result := NewDispatcher(gateway).Notify(context.Background(), testEvent(trip.EventDeviationCleared))

	assert.Equal(t, trip.NotifyResult{}, result)
	assert.Empty(t, gateway.sent)
}

func TestDispatcher_NoRecipients(t *testing.T) {
	gateway := &fakeGateway{}
	event := testEvent(trip.EventPanic)
	event.Recipients = nil

	result := NewDispatcher(gateway).Notify(context.Background(), event)

	assert.Equal(t, trip.NotifyResult{}, result)
	assert.Empty(t, gateway.sent)
}
