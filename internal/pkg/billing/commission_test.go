package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

func TestComputeCommission(t *testing.T) {
	policy := DefaultCommissionPolicy()
	gross := MinorUnitsToAmount(1000)
	assert.Equal(t, "10.00", gross.StringFixed(2))

	storeRate, ok := policy.Rate(models.SaleTypeStore)
	require.True(t, ok)
	assert.Equal(t, "10.00", ComputeCommission(gross, storeRate).StringFixed(2))

	subRate, ok := policy.Rate(models.SaleTypeSubscription)
	require.True(t, ok)
	assert.Equal(t, "1.00", ComputeCommission(gross, subRate).StringFixed(2))

	_, ok = policy.Rate("lottery")
	assert.False(t, ok)
}

func TestComputeCommission_Rounding(t *testing.T) {
	gross := MinorUnitsToAmount(1999)
	rate := decimal.RequireFromString("0.15")
	assert.Equal(t, "3.00", ComputeCommission(gross, rate).StringFixed(2))
	assert.Equal(t, "0.00", ComputeCommission(MinorUnitsToAmount(0), rate).StringFixed(2))
}

func TestCommissionPolicyFromEnv(t *testing.T) {
	t.Setenv("COMMISSION_RATE_STORE", "")
	t.Setenv("COMMISSION_RATE_SUBSCRIPTION", "0.25")
	policy, err := CommissionPolicyFromEnv()
	require.NoError(t, err)

	store, _ := policy.Rate(models.SaleTypeStore)
	sub, _ := policy.Rate(models.SaleTypeSubscription)
	assert.True(t, decimal.NewFromInt(1).Equal(store))
	assert.True(t, decimal.RequireFromString("0.25").Equal(sub))

	t.Setenv("COMMISSION_RATE_STORE", "1.5")
	_, err = CommissionPolicyFromEnv()
	assert.Error(t, err)

	t.Setenv("COMMISSION_RATE_STORE", "half")
	_, err = CommissionPolicyFromEnv()
	assert.Error(t, err)
}
