package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

func signedHeader(payload []byte, secret string, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	}).Header
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testSecret, 0)
	payload := envelope(t, "evt_1", "checkout.session.completed", checkoutObject("cs_1", 1000, "a@b.test", nil))

	t.Run("valid signature", func(t *testing.T) {
		event, err := v.Verify(payload, signedHeader(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, "checkout.session.completed", string(event.Type))
		require.NotNil(t, event.Data)
		assert.NotEmpty(t, event.Data.Raw)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(payload, signedHeader(payload, "whsec_other", time.Now()))
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("tampered body", func(t *testing.T) {
		header := signedHeader(payload, testSecret, time.Now())
		tampered := envelope(t, "evt_1", "checkout.session.completed", checkoutObject("cs_1", 999999, "a@b.test", nil))
		_, err := v.Verify(tampered, header)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("expired timestamp", func(t *testing.T) {
		_, err := v.Verify(payload, signedHeader(payload, testSecret, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := v.Verify(payload, "")
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("authentic but malformed body", func(t *testing.T) {
		body := []byte(`{"id": "evt_2", "type": `)
		_, err := v.Verify(body, signedHeader(body, testSecret, time.Now()))
		assert.ErrorIs(t, err, ErrValidation)
		assert.NotErrorIs(t, err, ErrAuthentication)
	})

	t.Run("missing event type", func(t *testing.T) {
		body := []byte(`{"id": "evt_3", "object": "event"}`)
		_, err := v.Verify(body, signedHeader(body, testSecret, time.Now()))
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestVerifier_NotConfigured(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"ping"}`)
	header := signedHeader(payload, testSecret, time.Now())

	_, err := NewVerifier("  ", 0).Verify(payload, header)
	assert.ErrorIs(t, err, ErrAuthentication)

	var nilVerifier *Verifier
	_, err = nilVerifier.Verify(payload, header)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestNewVerifierFromEnv(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	_, err := NewVerifierFromEnv()
	assert.Error(t, err)

	t.Setenv("STRIPE_WEBHOOK_SECRET", testSecret)
	t.Setenv("STRIPE_WEBHOOK_TOLERANCE", "30s")
	v, err := NewVerifierFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, v.tolerance)

	t.Setenv("STRIPE_WEBHOOK_TOLERANCE", "soon")
	_, err = NewVerifierFromEnv()
	assert.Error(t, err)
}
