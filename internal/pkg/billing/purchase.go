package billing

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

// PurchaseView is the public shape of a recorded purchase.
type PurchaseView struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	ProductIDs    []string  `json:"productIds"`
	ProductNames  []string  `json:"productNames"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	CustomerEmail string    `json:"customerEmail"`
	CreatedAt     time.Time `json:"createdAt"`
}

// recordPurchase writes the audit record for a session. It runs regardless of
// the outcome of the referral and access steps.
func (s *Service) recordPurchase(ctx context.Context, session *CheckoutPayload, logger zerolog.Logger) error {
	_ = ctx
	purchase := &models.Purchase{
		SessionID:       session.ID,
		CustomerEmail:   session.Email(),
		ProductIDs:      strings.Join(session.ProductIDs(), models.ProductIDSeparator),
		ProductNames:    strings.Join(session.ProductNames(), models.ProductNameSeparator),
		Amount:          session.Amount(),
		Currency:        session.CurrencyCode(),
		StripePaymentID: session.PaymentIntent,
	}
	if code := session.ReferralCode(); code != "" {
		if n := utf8.RuneCountInString(code); n > models.PurchaseReferralCodeMaxLen {
			logger.Warn().Int("length", n).Msg("referral code too long; recording truncated value")
			code = string([]rune(code)[:models.PurchaseReferralCodeMaxLen])
		}
		purchase.ReferralCode = &code
	}

	created, err := s.repo.CreatePurchaseIfNotExists(purchase)
	if err != nil {
		return storeErr("record purchase", err)
	}
	if !created {
		logger.Info().Msg("purchase already recorded")
		return nil
	}
	logger.Info().Str("amount", purchase.Amount.StringFixed(2)).Msg("purchase recorded")
	return nil
}

// GetPurchase returns the purchase recorded for a checkout session.
// Unknown sessions return gorm.ErrRecordNotFound.
func (s *Service) GetPurchase(ctx context.Context, sessionID string) (*PurchaseView, error) {
	_ = ctx
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, validationErr("session id is required")
	}
	p, err := s.repo.GetPurchaseBySessionID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, storeErr("lookup purchase", err)
	}

	currency := p.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	amount, _ := p.Amount.Float64()
	return &PurchaseView{
		ID:            p.ID,
		SessionID:     p.SessionID,
		ProductIDs:    p.ProductIDList(),
		ProductNames:  p.ProductNameList(),
		Amount:        amount,
		Currency:      currency,
		CustomerEmail: p.CustomerEmail,
		CreatedAt:     p.CreatedAt,
	}, nil
}
