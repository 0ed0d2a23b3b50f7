package entitlements

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/storetest"
)

func TestGrant_RegisteredEmail(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	acc := store.AddAccount(models.Account{Email: "buyer@example.com", ReferralCode: "BUYER001"})

	err := svc.Grant(context.Background(), " BUYER@example.com", "cs_1", []string{"p1", "p2", "p1", ""})
	require.NoError(t, err)

	grants, err := svc.ListGrants(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "p1", grants[0].ProductID)
	assert.Equal(t, "p2", grants[1].ProductID)
	assert.Empty(t, store.Pending())

	// replay is a no-op
	require.NoError(t, svc.Grant(context.Background(), "buyer@example.com", "cs_1", []string{"p1", "p2"}))
	assert.Len(t, store.Grants(), 2)
}

func TestGrant_UnknownEmailQueuesPending(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)

	require.NoError(t, svc.Grant(context.Background(), "new@example.com", "cs_1", []string{"p1", "p2"}))
	require.NoError(t, svc.Grant(context.Background(), "new@example.com", "cs_1", []string{"p1", "p2"}))

	pending := store.Pending()
	require.Len(t, pending, 2)
	assert.Empty(t, store.Grants())
	for _, p := range pending {
		assert.Equal(t, models.EntitlementStatusPending, p.Status)
		assert.Equal(t, "cs_1", p.SessionID)
	}
}

func TestGrant_RequiresEmailAndSession(t *testing.T) {
	svc := NewService(storetest.New())
	assert.Error(t, svc.Grant(context.Background(), "", "cs_1", []string{"p1"}))
	assert.Error(t, svc.Grant(context.Background(), "a@b.test", " ", []string{"p1"}))
	assert.NoError(t, svc.Grant(context.Background(), "a@b.test", "cs_1", nil))
}

func TestGrant_OneFailingProductDoesNotBlockOthers(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	store.AddAccount(models.Account{Email: "buyer@example.com", ReferralCode: "BUYER001"})
	store.FailOn("CreateGrantIfNotExists:p1", errors.New("deadlock"))

	err := svc.Grant(context.Background(), "buyer@example.com", "cs_1", []string{"p1", "p2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p1")

	grants := store.Grants()
	require.Len(t, grants, 1)
	assert.Equal(t, "p2", grants[0].ProductID)
}

func TestGrant_LookupFailure(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	store.FailOn("GetAccountByEmail", errors.New("db gone"))

	assert.Error(t, svc.Grant(context.Background(), "buyer@example.com", "cs_1", []string{"p1"}))
	assert.Empty(t, store.Pending())
}

func TestPromotePending(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)

	require.NoError(t, svc.Grant(context.Background(), "late@example.com", "cs_1", []string{"p1", "p2"}))
	require.NoError(t, svc.Grant(context.Background(), "other@example.com", "cs_2", []string{"p3"}))
	acc := store.AddAccount(models.Account{Email: "late@example.com", ReferralCode: "LATE0001"})

	n, err := svc.PromotePending(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	grants, err := svc.ListGrants(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 2)

	promoted := 0
	for _, p := range store.Pending() {
		if p.Status == models.EntitlementStatusPromoted {
			promoted++
			require.NotNil(t, p.AccountID)
			assert.Equal(t, acc.ID, *p.AccountID)
		}
	}
	assert.Equal(t, 2, promoted)

	n, err = svc.PromotePending(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, store.Grants(), 2)
}

func TestPromotePending_RetriesAfterGrantFailure(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	require.NoError(t, svc.Grant(context.Background(), "late@example.com", "cs_1", []string{"p1"}))
	acc := store.AddAccount(models.Account{Email: "late@example.com", ReferralCode: "LATE0001"})

	store.FailOn("CreateGrantIfNotExists", errors.New("timeout"))
	n, err := svc.PromotePending(context.Background(), acc)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, models.EntitlementStatusPending, store.Pending()[0].Status)

	store.FailOn("CreateGrantIfNotExists", nil)
	n, err = svc.PromotePending(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweepPending(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	require.NoError(t, svc.Grant(context.Background(), "a@example.com", "cs_1", []string{"p1"}))
	require.NoError(t, svc.Grant(context.Background(), "b@example.com", "cs_2", []string{"p2", "p3"}))
	require.NoError(t, svc.Grant(context.Background(), "nobody@example.com", "cs_3", []string{"p4"}))

	a := store.AddAccount(models.Account{Email: "a@example.com", ReferralCode: "AAAAAAA1"})
	b := store.AddAccount(models.Account{Email: "b@example.com", ReferralCode: "BBBBBBB1"})

	n, err := svc.SweepPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ga, _ := svc.ListGrants(context.Background(), a.ID)
	gb, _ := svc.ListGrants(context.Background(), b.ID)
	assert.Len(t, ga, 1)
	assert.Len(t, gb, 2)

	still := 0
	for _, p := range store.Pending() {
		if p.Status == models.EntitlementStatusPending {
			still++
			assert.Equal(t, "nobody@example.com", p.Email)
		}
	}
	assert.Equal(t, 1, still)

	n, err = svc.SweepPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepPending_CancelledContext(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	require.NoError(t, svc.Grant(context.Background(), "a@example.com", "cs_1", []string{"p1"}))
	store.AddAccount(models.Account{Email: "a@example.com", ReferralCode: "AAAAAAA1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := svc.SweepPending(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}
