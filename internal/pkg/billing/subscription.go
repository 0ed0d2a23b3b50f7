package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

// ReconcileSubscription overwrites the subscription fields of the matching
// account with the state carried by a created/updated event. Applying the
// same event twice leaves the account unchanged.
func (s *Service) ReconcileSubscription(ctx context.Context, eventID string, sub *SubscriptionPayload) error {
	if sub == nil {
		return validationErr("subscription payload is missing")
	}
	logger := log.With().Str("event_id", eventID).Str("subscription_id", sub.ID).Logger()

	status, ok := mapSubscriptionStatus(sub.Status)
	if !ok {
		return validationErr("unknown subscription status %q", sub.Status)
	}

	account, err := s.resolveSubscriptionAccount(ctx, sub)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn().Str("customer_id", sub.Customer).Msg("no account for subscription; dropping event")
		return nil
	}
	if err != nil {
		return storeErr("resolve subscription account", err)
	}
	logger = logger.With().Str("account_id", account.ID).Logger()

	if isStaleAfterCancel(account, sub.ID, status) {
		logger.Info().Str("status", status).Msg("subscription already cancelled; dropping stale update")
		return nil
	}

	fields := models.SubscriptionFields{
		Status:         status,
		SubscriptionID: sub.ID,
		Tier:           sub.Tier(),
		StartDate:      sub.PeriodStart(),
		EndDate:        sub.PeriodEnd(),
	}
	if account.StripeCustomerID == nil && strings.TrimSpace(sub.Customer) != "" {
		fields.CustomerID = strings.TrimSpace(sub.Customer)
	}
	if err := s.repo.UpdateAccountSubscription(account.ID, fields); err != nil {
		return storeErr("update subscription", err)
	}

	logger.Info().Str("status", status).Str("tier", fields.Tier).Msg("subscription reconciled")
	return nil
}

// CancelSubscription moves the account into the terminal cancelled state.
// Deletions of a subscription the account has already replaced are ignored.
func (s *Service) CancelSubscription(ctx context.Context, eventID string, sub *SubscriptionPayload) error {
	if sub == nil {
		return validationErr("subscription payload is missing")
	}
	logger := log.With().Str("event_id", eventID).Str("subscription_id", sub.ID).Logger()

	account, err := s.resolveSubscriptionAccount(ctx, sub)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn().Str("customer_id", sub.Customer).Msg("no account for deleted subscription; dropping event")
		return nil
	}
	if err != nil {
		return storeErr("resolve subscription account", err)
	}

	if current := account.CurrentSubscriptionID(); current != "" && current != sub.ID {
		logger.Info().Str("account_id", account.ID).Str("current_subscription_id", current).
			Msg("deleted subscription was already replaced; ignoring")
		return nil
	}
	if err := s.repo.CancelAccountSubscription(account.ID); err != nil {
		return storeErr("cancel subscription", err)
	}

	logger.Info().Str("account_id", account.ID).Msg("subscription cancelled")
	return nil
}

// resolveSubscriptionAccount looks the account up by payment customer first
// and falls back to the account id stored in the subscription metadata.
func (s *Service) resolveSubscriptionAccount(ctx context.Context, sub *SubscriptionPayload) (*models.Account, error) {
	_ = ctx
	if customer := strings.TrimSpace(sub.Customer); customer != "" {
		account, err := s.repo.GetAccountByStripeCustomerID(customer)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if id := sub.MetadataAccountID(); id != "" {
		return s.repo.GetAccountByID(id)
	}
	return nil, gorm.ErrRecordNotFound
}
