package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/SupplierHub/app/controllers"
	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/accounts"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/billing"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/entitlements"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/storetest"
)

const (
	testWebhookSecret = "whsec_router_test"
	testInternalToken = "internal-token"
)

type memoryStats struct {
	mu       sync.Mutex
	outcomes map[string]int64
}

func (m *memoryStats) AddWebhookOutcome(_ context.Context, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
	return nil
}

func (m *memoryStats) Pending(context.Context) (map[string]map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int64{}
	for k, v := range m.outcomes {
		out[k] = v
	}
	return map[string]map[string]int64{"today": out}, nil
}

func (m *memoryStats) Daily(context.Context, int) ([]models.WebhookDailyStat, error) {
	return []models.WebhookDailyStat{}, nil
}

func (m *memoryStats) count(outcome string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

type testServer struct {
	app   *fiber.App
	store *storetest.Store
	stats *memoryStats
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storetest.New()
	ent := entitlements.NewService(store)
	billingService := billing.NewService(store, ent)
	accountService := accounts.NewService(store, ent)
	stats := &memoryStats{outcomes: map[string]int64{}}

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Webhook:       controllers.NewWebhookController(billing.NewVerifier(testWebhookSecret, 0), billingService, stats),
		Purchase:      controllers.NewPurchaseController(billingService),
		Account:       controllers.NewAccountController(accountService, ent),
		InternalToken: testInternalToken,
	})
	return &testServer{app: app, store: store, stats: stats}
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp.StatusCode, out
}

func checkoutPayload(t *testing.T, eventID, sessionID string, metadata map[string]string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":     eventID,
		"object": "event",
		"type":   "checkout.session.completed",
		"data": map[string]interface{}{"object": map[string]interface{}{
			"id":               sessionID,
			"object":           "checkout.session",
			"payment_status":   "paid",
			"amount_total":     1000,
			"currency":         "usd",
			"customer_details": map[string]string{"email": "buyer@example.com"},
			"metadata":         metadata,
		}},
	})
	require.NoError(t, err)
	return payload
}

func webhookRequest(payload []byte, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    secret,
			Timestamp: time.Now(),
		})
		req.Header.Set(billing.SignatureHeader, signed.Header)
	}
	return req
}

func TestWebhook_InvalidSignatureWritesNothing(t *testing.T) {
	s := newTestServer(t)
	payload := checkoutPayload(t, "evt_1", "cs_1", map[string]string{"productIds": "p1"})

	status, body := s.do(t, webhookRequest(payload, "whsec_wrong"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", body["error"])

	status, _ = s.do(t, webhookRequest(payload, ""))
	assert.Equal(t, fiber.StatusBadRequest, status)

	assert.Equal(t, 0, s.store.Writes())
	assert.Equal(t, int64(2), s.stats.count(models.WebhookOutcomeInvalidSignature))
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, fiber.MethodPost, resp.Header.Get(fiber.HeaderAllow))
}

func TestWebhook_ProcessesCheckoutAndDeduplicates(t *testing.T) {
	s := newTestServer(t)
	affiliate := s.store.AddAccount(models.Account{Email: "aff@example.com", ReferralCode: "AFFIL001"})
	payload := checkoutPayload(t, "evt_2", "cs_2", map[string]string{
		"referralCode": "AFFIL001",
		"productIds":   "p1",
		"productNames": "Pack One",
	})

	status, body := s.do(t, webhookRequest(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["received"])
	assert.Nil(t, body["duplicate"])

	status, body = s.do(t, webhookRequest(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	assert.Len(t, s.store.Sales(), 1)
	assert.Equal(t, "10.00", s.store.Account(affiliate.ID).TotalEarnings.StringFixed(2))
	assert.Equal(t, int64(1), s.stats.count(models.WebhookOutcomeProcessed))
	assert.Equal(t, int64(1), s.stats.count(models.WebhookOutcomeDuplicate))

	status, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/purchase/cs_2", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "cs_2", body["sessionId"])
	assert.Equal(t, 10.0, body["amount"])
	assert.Equal(t, []interface{}{"p1"}, body["productIds"])
}

func TestWebhook_InvalidPayload(t *testing.T) {
	s := newTestServer(t)
	payload := []byte(`{"id":"evt_3","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_1","status":"exploded"}}}`)

	status, body := s.do(t, webhookRequest(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_payload", body["error"])
}

func TestWebhook_StoreFailureAsksForRetry(t *testing.T) {
	s := newTestServer(t)
	s.store.AddAccount(models.Account{Email: "aff@example.com", ReferralCode: "AFFIL001"})
	s.store.FailOn("CreditCommission", assert.AnError)
	payload := checkoutPayload(t, "evt_4", "cs_4", map[string]string{"referralCode": "AFFIL001"})

	status, body := s.do(t, webhookRequest(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "webhook_processing_failed", body["error"])

	s.store.FailOn("CreditCommission", nil)
	status, _ = s.do(t, webhookRequest(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, s.store.Sales(), 1)
}

func TestPurchase_Lookup(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/purchase/", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "missing_session_id", body["error"])

	status, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/purchase/cs_unknown", nil))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "purchase_not_found", body["error"])
}

func internalRequest(method, path string, body []byte) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testInternalToken)
	return req
}

func TestInternal_AccountLifecycle(t *testing.T) {
	s := newTestServer(t)

	// purchase before registration leaves a pending grant
	payload := checkoutPayload(t, "evt_5", "cs_5", map[string]string{"productIds": "p1,p2"})
	status, _ := s.do(t, webhookRequest(payload, testWebhookSecret))
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, s.store.Pending(), 2)

	unauth := httptest.NewRequest(http.MethodPost, "/api/internal/accounts", bytes.NewReader([]byte(`{}`)))
	status, _ = s.do(t, unauth)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := s.do(t, internalRequest(http.MethodPost, "/api/internal/accounts",
		[]byte(`{"email":"buyer@example.com","display_name":"Buyer"}`)))
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, float64(2), body["promoted_entitlements"])
	account := body["account"].(map[string]interface{})
	id := account["id"].(string)
	assert.Equal(t, models.SubscriptionStatusInactive, account["subscription_status"])

	status, body = s.do(t, internalRequest(http.MethodPost, "/api/internal/accounts",
		[]byte(`{"email":"buyer@example.com"}`)))
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "email_taken", body["error"])

	status, body = s.do(t, internalRequest(http.MethodPost, "/api/internal/accounts", []byte(`{"email":"nope"}`)))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_account", body["error"])

	status, body = s.do(t, internalRequest(http.MethodGet, "/api/internal/accounts/"+id, nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "buyer@example.com", body["email"])

	status, body = s.do(t, internalRequest(http.MethodGet, "/api/internal/accounts/"+id+"/entitlements", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["entitlements"], 2)

	status, body = s.do(t, internalRequest(http.MethodGet, "/api/internal/accounts/"+id+"/sales", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["sales"], 0)

	status, body = s.do(t, internalRequest(http.MethodGet, "/api/internal/accounts/missing", nil))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "account_not_found", body["error"])
}

func TestInternal_WebhookStats(t *testing.T) {
	s := newTestServer(t)
	s.do(t, webhookRequest([]byte(`{}`), "whsec_wrong"))

	status, body := s.do(t, internalRequest(http.MethodGet, "/api/internal/webhooks/stats?days=3", nil))
	assert.Equal(t, fiber.StatusOK, status)
	pending := body["pending"].(map[string]interface{})["today"].(map[string]interface{})
	assert.Equal(t, float64(1), pending[models.WebhookOutcomeInvalidSignature])
}
