package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/internal/domain"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"type":"payment_intent.succeeded"}`)
	header := SignPayload(payload, "whsec_1", time.Now())

	assert.NoError(t, VerifySignature(payload, header, "whsec_1", 5*time.Minute))
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	payload := []byte(`{"amount":100}`)
	header := SignPayload(payload, "whsec_1", time.Now())

	err := VerifySignature([]byte(`{"amount":999}`), header, "whsec_1", 5*time.Minute)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	err = VerifySignature(payload, header, "whsec_other", 5*time.Minute)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	header := SignPayload(payload, "whsec_1", time.Now().Add(-time.Hour))

	err := VerifySignature(payload, header, "whsec_1", 5*time.Minute)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	// Zero tolerance disables the age check.
	assert.NoError(t, VerifySignature(payload, header, "whsec_1", 0))
}

func TestVerifySignatureRejectsMalformedHeader(t *testing.T) {
	payload := []byte(`{}`)

	for _, header := range []string{"", "t=123", "v1=abcd", "t=abc,v1=zz"} {
		assert.ErrorIs(t, VerifySignature(payload, header, "whsec_1", time.Minute), domain.ErrSignatureInvalid, header)
	}
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_42",
			"amount_received": 7500,
			"metadata": {"booking_id": "b-9"}
		}}
	}`)
	header := SignPayload(payload, "whsec_1", time.Now())

	event, err := ParseEvent(payload, header, "whsec_1", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, EventIntentSucceeded, event.Type)
	assert.Equal(t, "pi_42", event.IntentRef)
	assert.Equal(t, "b-9", event.BookingID)
	assert.Equal(t, int64(7500), event.AmountReceived)
}
