package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

func decodeSubscription(t *testing.T, eventType string, object map[string]interface{}) *Event {
	t.Helper()
	ev, err := DecodeEvent(rawEvent(t, "evt_"+eventType, eventType, object))
	require.NoError(t, err)
	return ev
}

func TestReconcileSubscription_ActivatesAccount(t *testing.T) {
	svc, store := newTestService(t)
	acc := store.AddAccount(models.Account{Email: "sub@example.com", ReferralCode: "SUBSCR01", StripeCustomerID: strPtr("cus_1")})

	ev := decodeSubscription(t, "customer.subscription.created",
		subscriptionObject("sub_1", "cus_1", "active", "month", 1700000000, 1702592000))
	require.NoError(t, svc.HandleEvent(context.Background(), ev))

	got := store.Account(acc.ID)
	assert.Equal(t, models.SubscriptionStatusActive, got.SubscriptionStatus)
	assert.Equal(t, "sub_1", got.CurrentSubscriptionID())
	assert.Equal(t, models.SubscriptionTierMonth, got.SubscriptionTier)
	require.NotNil(t, got.SubscriptionStartDate)
	require.NotNil(t, got.SubscriptionEndDate)
	assert.Equal(t, int64(1702592000), got.SubscriptionEndDate.Unix())
}

func TestReconcileSubscription_Idempotent(t *testing.T) {
	svc, store := newTestService(t)
	acc := store.AddAccount(models.Account{Email: "sub@example.com", ReferralCode: "SUBSCR01", StripeCustomerID: strPtr("cus_1")})
	ev := decodeSubscription(t, "customer.subscription.updated",
		subscriptionObject("sub_1", "cus_1", "past_due", "year", 1700000000, 1731536000))

	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	first := store.Account(acc.ID)
	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	second := store.Account(acc.ID)

	assert.Equal(t, first.SubscriptionStatus, second.SubscriptionStatus)
	assert.Equal(t, first.CurrentSubscriptionID(), second.CurrentSubscriptionID())
	assert.Equal(t, first.SubscriptionTier, second.SubscriptionTier)
	assert.Equal(t, first.SubscriptionEndDate.Unix(), second.SubscriptionEndDate.Unix())
}

func TestReconcileSubscription_UnknownCustomerIsDropped(t *testing.T) {
	svc, store := newTestService(t)
	ev := decodeSubscription(t, "customer.subscription.created",
		subscriptionObject("sub_1", "cus_unknown", "active", "month", 1700000000, 1702592000))

	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	assert.Equal(t, 0, store.Writes())
}

func TestReconcileSubscription_MetadataFallbackLinksCustomer(t *testing.T) {
	svc, store := newTestService(t)
	acc := store.AddAccount(models.Account{Email: "meta@example.com", ReferralCode: "METADATA"})

	obj := subscriptionObject("sub_9", "cus_new", "trialing", "month", 1700000000, 1702592000)
	obj["metadata"] = map[string]string{MetaAccountID: acc.ID}
	require.NoError(t, svc.HandleEvent(context.Background(), decodeSubscription(t, "customer.subscription.created", obj)))

	got := store.Account(acc.ID)
	assert.Equal(t, models.SubscriptionStatusTrialing, got.SubscriptionStatus)
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_new", *got.StripeCustomerID)
}

func TestCancelSubscription(t *testing.T) {
	svc, store := newTestService(t)
	acc := store.AddAccount(models.Account{
		Email:                "sub@example.com",
		ReferralCode:         "SUBSCR01",
		StripeCustomerID:     strPtr("cus_1"),
		StripeSubscriptionID: strPtr("sub_1"),
		SubscriptionStatus:   models.SubscriptionStatusActive,
	})

	ev := decodeSubscription(t, "customer.subscription.deleted",
		subscriptionObject("sub_1", "cus_1", "canceled", "month", 0, 0))
	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	assert.Equal(t, models.SubscriptionStatusCancelled, store.Account(acc.ID).SubscriptionStatus)

	// replay
	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	assert.Equal(t, models.SubscriptionStatusCancelled, store.Account(acc.ID).SubscriptionStatus)
}

func TestCancelSubscription_ReplacedSubscriptionIgnored(t *testing.T) {
	svc, store := newTestService(t)
	acc := store.AddAccount(models.Account{
		Email:                "sub@example.com",
		ReferralCode:         "SUBSCR01",
		StripeCustomerID:     strPtr("cus_1"),
		StripeSubscriptionID: strPtr("sub_2"),
		SubscriptionStatus:   models.SubscriptionStatusActive,
	})

	ev := decodeSubscription(t, "customer.subscription.deleted",
		subscriptionObject("sub_1", "cus_1", "canceled", "month", 0, 0))
	require.NoError(t, svc.HandleEvent(context.Background(), ev))
	assert.Equal(t, models.SubscriptionStatusActive, store.Account(acc.ID).SubscriptionStatus)
}

func TestReconcileSubscription_StaleUpdateAfterCancel(t *testing.T) {
	svc, store := newTestService(t)
	acc := store.AddAccount(models.Account{
		Email:                "sub@example.com",
		ReferralCode:         "SUBSCR01",
		StripeCustomerID:     strPtr("cus_1"),
		StripeSubscriptionID: strPtr("sub_1"),
		SubscriptionStatus:   models.SubscriptionStatusCancelled,
	})

	stale := decodeSubscription(t, "customer.subscription.updated",
		subscriptionObject("sub_1", "cus_1", "active", "month", 1700000000, 1702592000))
	require.NoError(t, svc.HandleEvent(context.Background(), stale))
	assert.Equal(t, models.SubscriptionStatusCancelled, store.Account(acc.ID).SubscriptionStatus)

	// A new subscription re-activates the account.
	fresh := decodeSubscription(t, "customer.subscription.created",
		subscriptionObject("sub_2", "cus_1", "active", "year", 1710000000, 1741536000))
	require.NoError(t, svc.HandleEvent(context.Background(), fresh))
	got := store.Account(acc.ID)
	assert.Equal(t, models.SubscriptionStatusActive, got.SubscriptionStatus)
	assert.Equal(t, "sub_2", got.CurrentSubscriptionID())
	assert.Equal(t, models.SubscriptionTierYear, got.SubscriptionTier)
}

func TestReconcileSubscription_StoreFailureIsTransient(t *testing.T) {
	svc, store := newTestService(t)
	store.AddAccount(models.Account{Email: "sub@example.com", ReferralCode: "SUBSCR01", StripeCustomerID: strPtr("cus_1")})
	store.FailOn("UpdateAccountSubscription", errors.New("connection reset"))

	ev := decodeSubscription(t, "customer.subscription.updated",
		subscriptionObject("sub_1", "cus_1", "active", "month", 1700000000, 1702592000))
	err := svc.HandleEvent(context.Background(), ev)
	assert.ErrorIs(t, err, ErrTransientStore)
}
