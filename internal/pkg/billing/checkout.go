package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

// ProcessCheckoutCompleted credits the referring affiliate, grants product
// access and records the purchase for a paid checkout session. The three
// steps run independently; their failures are joined into the returned error
// so the provider re-delivers, and every step is idempotent per session.
func (s *Service) ProcessCheckoutCompleted(ctx context.Context, eventID string, session *CheckoutPayload) error {
	if session == nil {
		return validationErr("checkout payload is missing")
	}
	logger := log.With().Str("event_id", eventID).Str("session_id", session.ID).Logger()

	if !session.IsPaid() {
		logger.Info().Str("payment_status", session.PaymentStatus).Msg("checkout session not paid; skipping")
		return nil
	}

	var errs []error
	if err := runStep("credit referral", func() error { return s.creditReferral(ctx, session, logger) }); err != nil {
		logger.Error().Err(err).Msg("referral crediting failed")
		errs = append(errs, err)
	}
	if err := runStep("grant access", func() error { return s.grantAccess(ctx, session, logger) }); err != nil {
		logger.Error().Err(err).Msg("access granting failed")
		errs = append(errs, err)
	}
	if err := runStep("record purchase", func() error { return s.recordPurchase(ctx, session, logger) }); err != nil {
		logger.Error().Err(err).Msg("purchase recording failed")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// runStep isolates one checkout step, turning a panic into an error.
func runStep(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	return fn()
}

// creditReferral writes the sale and increments the affiliate ledger in one
// transaction keyed by checkout session, so a session is credited at most once.
func (s *Service) creditReferral(ctx context.Context, session *CheckoutPayload, logger zerolog.Logger) error {
	code := session.ReferralCode()
	if code == "" {
		return nil
	}
	logger = logger.With().Str("referral_code", code).Logger()

	affiliate, err := s.repo.GetAccountByReferralCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn().Msg("referral code does not match any account; skipping commission")
		return nil
	}
	if err != nil {
		return storeErr("lookup referral code", err)
	}

	saleType := session.SaleType()
	rate, err := s.commissionRate(saleType)
	if err != nil {
		return err
	}
	gross := session.Amount()

	sale := &models.Sale{
		AccountID:         affiliate.ID,
		ReferralCode:      code,
		Amount:            gross,
		Currency:          session.CurrencyCode(),
		Commission:        ComputeCommission(gross, rate),
		CommissionRate:    rate,
		ProductIDs:        strings.Join(session.ProductIDs(), models.ProductIDSeparator),
		ProductNames:      strings.Join(session.ProductNames(), models.ProductNameSeparator),
		SaleType:          saleType,
		StripePaymentID:   session.PaymentIntent,
		CheckoutSessionID: session.ID,
		CustomerEmail:     session.Email(),
		Status:            models.SaleStatusCompleted,
	}
	credited, err := s.repo.CreditCommission(sale)
	if err != nil {
		return storeErr("credit commission", err)
	}

	logger = logger.With().Str("account_id", affiliate.ID).Logger()
	if !credited {
		logger.Info().Msg("checkout session already credited")
		return nil
	}
	logger.Info().
		Str("sale_type", saleType).
		Str("commission", sale.Commission.StringFixed(2)).
		Msg("commission credited")
	return nil
}

// commissionRate prefers an active commission_rates row over the policy.
func (s *Service) commissionRate(saleType string) (decimal.Decimal, error) {
	row, err := s.repo.FindActiveCommissionRate(saleType)
	if err == nil {
		return row.Rate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, storeErr("lookup commission rate", err)
	}
	rate, ok := s.policy.Rate(saleType)
	if !ok {
		return decimal.Zero, fmt.Errorf("no commission rate configured for sale type %q", saleType)
	}
	return rate, nil
}

func (s *Service) grantAccess(ctx context.Context, session *CheckoutPayload, logger zerolog.Logger) error {
	productIDs := session.ProductIDs()
	email := session.Email()
	if len(productIDs) == 0 || email == "" {
		return nil
	}
	if s.granter == nil {
		logger.Warn().Msg("no access granter configured; skipping product grants")
		return nil
	}
	if err := s.granter.Grant(ctx, email, session.ID, productIDs); err != nil {
		return storeErr("grant access", err)
	}
	return nil
}
