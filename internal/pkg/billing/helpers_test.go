package billing

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/entitlements"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/storetest"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *storetest.Store) {
	t.Helper()
	store := storetest.New()
	return NewService(store, entitlements.NewService(store), opts...), store
}

func rawEvent(t *testing.T, id, eventType string, object interface{}) stripe.Event {
	t.Helper()
	data, err := json.Marshal(object)
	require.NoError(t, err)
	return stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: data},
	}
}

func envelope(t *testing.T, id, eventType string, object interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data":   map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func subscriptionObject(id, customer, status, interval string, start, end int64) map[string]interface{} {
	return map[string]interface{}{
		"id":       id,
		"object":   "subscription",
		"customer": customer,
		"status":   status,
		"items": map[string]interface{}{
			"data": []map[string]interface{}{{
				"current_period_start": start,
				"current_period_end":   end,
				"price": map[string]interface{}{
					"id":        "price_1",
					"recurring": map[string]interface{}{"interval": interval},
				},
			}},
		},
	}
}

func checkoutObject(id string, amount int64, email string, metadata map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"id":               id,
		"object":           "checkout.session",
		"mode":             "payment",
		"payment_status":   "paid",
		"amount_total":     amount,
		"currency":         "usd",
		"customer_details": map[string]interface{}{"email": email},
		"payment_intent":   "pi_" + id,
		"metadata":         metadata,
	}
}

func seedAffiliate(store *storetest.Store, code string) *models.Account {
	return store.AddAccount(models.Account{Email: code + "@affiliates.test", ReferralCode: code})
}

func strPtr(s string) *string { return &s }

// fakeLocker hands out one lock per key.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

type recordingArchiver struct {
	mu  sync.Mutex
	ids []string
}

func (a *recordingArchiver) Archive(_ context.Context, eventID string, _ time.Time, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, eventID)
	return nil
}
