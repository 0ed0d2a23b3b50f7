package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/SupplierHub/internal/pkg/env"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader carries the provider signature of a webhook delivery.
const SignatureHeader = "Stripe-Signature"

// Verifier authenticates webhook deliveries against the shared endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a verifier. A zero tolerance uses the provider default.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: strings.TrimSpace(secret), tolerance: tolerance}
}

// NewVerifierFromEnv reads STRIPE_WEBHOOK_SECRET and the optional
// STRIPE_WEBHOOK_TOLERANCE duration.
func NewVerifierFromEnv() (*Verifier, error) {
	secret := strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	if secret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET is not configured")
	}
	var tolerance time.Duration
	if raw := strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_TOLERANCE", "")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		tolerance = d
	}
	return NewVerifier(secret, tolerance), nil
}

// Verify checks the signature header against the raw body and decodes the
// event envelope. Signature problems return ErrAuthentication, an
// authentic but unreadable body returns ErrValidation.
func (v *Verifier) Verify(payload []byte, header string) (stripe.Event, error) {
	var event stripe.Event
	if v == nil || v.secret == "" {
		return event, ErrAuthentication
	}
	if strings.TrimSpace(header) == "" {
		return event, ErrAuthentication
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return event, errors.Join(ErrAuthentication, err)
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, validationErr("decode envelope: %v", err)
	}
	if strings.TrimSpace(string(event.Type)) == "" {
		return event, validationErr("event type is missing")
	}
	return event, nil
}
