package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/env"
)

var (
	defaultStoreRate        = decimal.RequireFromString("1.0")
	defaultSubscriptionRate = decimal.RequireFromString("0.10")
)

// CommissionPolicy maps a sale type to the share of the gross amount
// credited to the referring affiliate.
type CommissionPolicy struct {
	rates map[string]decimal.Decimal
}

// NewCommissionPolicy builds a policy with explicit store and subscription rates.
func NewCommissionPolicy(storeRate, subscriptionRate decimal.Decimal) CommissionPolicy {
	return CommissionPolicy{rates: map[string]decimal.Decimal{
		models.SaleTypeStore:        storeRate,
		models.SaleTypeSubscription: subscriptionRate,
	}}
}

func DefaultCommissionPolicy() CommissionPolicy {
	return NewCommissionPolicy(defaultStoreRate, defaultSubscriptionRate)
}

// CommissionPolicyFromEnv reads COMMISSION_RATE_STORE and
// COMMISSION_RATE_SUBSCRIPTION, falling back to the defaults.
func CommissionPolicyFromEnv() (CommissionPolicy, error) {
	store, err := rateFromEnv("COMMISSION_RATE_STORE", defaultStoreRate)
	if err != nil {
		return CommissionPolicy{}, err
	}
	sub, err := rateFromEnv("COMMISSION_RATE_SUBSCRIPTION", defaultSubscriptionRate)
	if err != nil {
		return CommissionPolicy{}, err
	}
	return NewCommissionPolicy(store, sub), nil
}

func rateFromEnv(key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if err := checkRate(rate); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return rate, nil
}

func checkRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate %s must be between 0 and 1", rate)
	}
	return nil
}

// Rate returns the configured rate for a sale type.
func (p CommissionPolicy) Rate(saleType string) (decimal.Decimal, bool) {
	rate, ok := p.rates[saleType]
	return rate, ok
}

// ComputeCommission returns gross × rate rounded to cents.
func ComputeCommission(gross, rate decimal.Decimal) decimal.Decimal {
	return gross.Mul(rate).Round(2)
}

// MinorUnitsToAmount converts an amount in cents into a decimal amount.
func MinorUnitsToAmount(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
