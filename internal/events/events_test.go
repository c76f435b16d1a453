package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewEventBus()

	var got []*Event
	bus.Subscribe(EventBookingAccepted, func(event *Event) error {
		got = append(got, event)
		return nil
	})
	bus.Subscribe(EventBookingRejected, func(event *Event) error {
		t.Fatal("wrong event type delivered")
		return nil
	})

	err := bus.PublishJSON(EventBookingAccepted, BookingEventPayload{BookingID: "b-1", Status: "accepted"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, EventBookingAccepted, got[0].Type)
	assert.False(t, got[0].CreatedAt.IsZero())

	var payload BookingEventPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &payload))
	assert.Equal(t, "b-1", payload.BookingID)
}

func TestPublishJSONOnNilBusIsNoop(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventPaymentSucceeded, BookingEventPayload{BookingID: "b-1"}))
}
