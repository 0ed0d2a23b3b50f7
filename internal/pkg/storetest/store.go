// Package storetest provides an in-memory store satisfying the billing,
// entitlement and account store interfaces for tests.
package storetest

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

// Store keeps every table in memory behind one mutex. Unique keys mirror the
// database schema so idempotency behaves the same way.
type Store struct {
	mu sync.Mutex

	accounts      map[string]*models.Account
	sales         []models.Sale
	purchases     []models.Purchase
	grants        []models.ProductEntitlement
	pending       []models.PendingEntitlement
	rates         map[string]models.CommissionRate
	webhookEvents []models.BillingWebhookEvent
	failures      map[string]error
	writes        int
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*models.Account),
		rates:    make(map[string]models.CommissionRate),
		failures: make(map[string]error),
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

// Writes counts successful mutations.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// AddAccount seeds an account, filling defaults the database would apply.
func (s *Store) AddAccount(a models.Account) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SubscriptionStatus == "" {
		a.SubscriptionStatus = models.SubscriptionStatusInactive
	}
	a.Email = strings.ToLower(a.Email)
	a.CreatedAt = time.Now()
	cp := a
	s.accounts[a.ID] = &cp
	out := cp
	return &out
}

// Account returns a copy of the stored account.
func (s *Store) Account(id string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (s *Store) SetCommissionRate(saleType string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[saleType] = models.CommissionRate{SaleType: saleType, Rate: rate, IsActive: true}
}

func (s *Store) Sales() []models.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Sale(nil), s.sales...)
}

func (s *Store) Purchases() []models.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Purchase(nil), s.purchases...)
}

func (s *Store) Grants() []models.ProductEntitlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProductEntitlement(nil), s.grants...)
}

func (s *Store) Pending() []models.PendingEntitlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PendingEntitlement(nil), s.pending...)
}

func (s *Store) WebhookEvents() []models.BillingWebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BillingWebhookEvent(nil), s.webhookEvents...)
}

// AddPending seeds a pending grant.
func (s *Store) AddPending(p models.PendingEntitlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.EntitlementStatusPending
	}
	p.Email = strings.ToLower(p.Email)
	s.pending = append(s.pending, p)
}

// Accounts

func (s *Store) CreateAccount(a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateAccount"); err != nil {
		return err
	}
	for _, existing := range s.accounts {
		if existing.Email == a.Email || existing.ReferralCode == a.ReferralCode {
			return gorm.ErrDuplicatedKey
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()
	cp := *a
	s.accounts[a.ID] = &cp
	s.writes++
	return nil
}

func (s *Store) GetAccountByID(id string) (*models.Account, error) {
	return s.findAccount("GetAccountByID", func(a *models.Account) bool { return a.ID == id })
}

func (s *Store) GetAccountByEmail(email string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.findAccount("GetAccountByEmail", func(a *models.Account) bool { return a.Email == email })
}

func (s *Store) GetAccountByStripeCustomerID(customerID string) (*models.Account, error) {
	return s.findAccount("GetAccountByStripeCustomerID", func(a *models.Account) bool {
		return a.StripeCustomerID != nil && *a.StripeCustomerID == customerID
	})
}

func (s *Store) GetAccountByReferralCode(code string) (*models.Account, error) {
	return s.findAccount("GetAccountByReferralCode", func(a *models.Account) bool { return a.ReferralCode == code })
}

func (s *Store) findAccount(method string, match func(*models.Account) bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(method); err != nil {
		return nil, err
	}
	for _, a := range s.accounts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *Store) ReferralCodeExists(code string) (bool, error) {
	_, err := s.GetAccountByReferralCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) UpdateAccountSubscription(accountID string, fields models.SubscriptionFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateAccountSubscription"); err != nil {
		return err
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return nil
	}
	a.SubscriptionStatus = fields.Status
	subID := fields.SubscriptionID
	a.StripeSubscriptionID = &subID
	a.SubscriptionTier = fields.Tier
	if fields.StartDate != nil {
		t := *fields.StartDate
		a.SubscriptionStartDate = &t
	}
	if fields.EndDate != nil {
		t := *fields.EndDate
		a.SubscriptionEndDate = &t
	}
	if fields.CustomerID != "" {
		c := fields.CustomerID
		a.StripeCustomerID = &c
	}
	s.writes++
	return nil
}

func (s *Store) CancelAccountSubscription(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CancelAccountSubscription"); err != nil {
		return err
	}
	if a, ok := s.accounts[accountID]; ok {
		a.SubscriptionStatus = models.SubscriptionStatusCancelled
		s.writes++
	}
	return nil
}

// Ledgers

func (s *Store) CreditCommission(sale *models.Sale) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreditCommission"); err != nil {
		return false, err
	}
	for _, existing := range s.sales {
		if existing.CheckoutSessionID == sale.CheckoutSessionID {
			return false, nil
		}
	}
	a, ok := s.accounts[sale.AccountID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	sale.CreatedAt = time.Now()
	s.sales = append(s.sales, *sale)
	a.TotalEarnings = a.TotalEarnings.Add(sale.Commission)
	a.AvailableBalance = a.AvailableBalance.Add(sale.Commission)
	a.LifetimeEarnings = a.LifetimeEarnings.Add(sale.Commission)
	a.ReferralCount++
	s.writes++
	return true, nil
}

func (s *Store) ListSalesByAccount(accountID string, offset, limit int) ([]models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListSalesByAccount"); err != nil {
		return nil, err
	}
	var out []models.Sale
	for i := len(s.sales) - 1; i >= 0; i-- {
		if s.sales[i].AccountID == accountID {
			out = append(out, s.sales[i])
		}
	}
	if offset >= len(out) {
		return []models.Sale{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreatePurchaseIfNotExists(p *models.Purchase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePurchaseIfNotExists"); err != nil {
		return false, err
	}
	if p.ReferralCode != nil && utf8.RuneCountInString(*p.ReferralCode) > models.PurchaseReferralCodeMaxLen {
		return false, errors.New("Error 1406: Data too long for column 'referral_code'")
	}
	for _, existing := range s.purchases {
		if existing.SessionID == p.SessionID {
			return false, nil
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	s.purchases = append(s.purchases, *p)
	s.writes++
	return true, nil
}

func (s *Store) GetPurchaseBySessionID(sessionID string) (*models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPurchaseBySessionID"); err != nil {
		return nil, err
	}
	for _, p := range s.purchases {
		if p.SessionID == sessionID {
			cp := p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *Store) FindActiveCommissionRate(saleType string) (*models.CommissionRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindActiveCommissionRate"); err != nil {
		return nil, err
	}
	r, ok := s.rates[saleType]
	if !ok || !r.IsActive {
		return nil, gorm.ErrRecordNotFound
	}
	return &r, nil
}

// Webhook ledger

func (s *Store) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateWebhookEventIfNotExists"); err != nil {
		return false, nil, err
	}
	for _, existing := range s.webhookEvents {
		if existing.Provider == event.Provider && existing.ProviderEventID == event.ProviderEventID {
			cp := existing
			return false, &cp, nil
		}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.CreatedAt = time.Now()
	s.webhookEvents = append(s.webhookEvents, *event)
	s.writes++
	cp := *event
	return true, &cp, nil
}

func (s *Store) MarkWebhookProcessed(id string, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkWebhookProcessed"); err != nil {
		return err
	}
	for i := range s.webhookEvents {
		if s.webhookEvents[i].ID == id {
			now := time.Now()
			s.webhookEvents[i].ProcessedAt = &now
			s.webhookEvents[i].ProcessingError = processingError
			s.writes++
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// Entitlements

func (s *Store) CreateGrantIfNotExists(grant *models.ProductEntitlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateGrantIfNotExists"); err != nil {
		return false, err
	}
	if err := s.fail("CreateGrantIfNotExists:" + grant.ProductID); err != nil {
		return false, err
	}
	for _, g := range s.grants {
		if g.AccountID == grant.AccountID && g.ProductID == grant.ProductID && g.SessionID == grant.SessionID {
			return false, nil
		}
	}
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	s.grants = append(s.grants, *grant)
	s.writes++
	return true, nil
}

func (s *Store) ListGrantsByAccount(accountID string) ([]models.ProductEntitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListGrantsByAccount"); err != nil {
		return nil, err
	}
	out := []models.ProductEntitlement{}
	for _, g := range s.grants {
		if g.AccountID == accountID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) CreatePendingIfNotExists(p *models.PendingEntitlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePendingIfNotExists"); err != nil {
		return false, err
	}
	for _, existing := range s.pending {
		if existing.Email == p.Email && existing.ProductID == p.ProductID && existing.SessionID == p.SessionID {
			return false, nil
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.pending = append(s.pending, *p)
	s.writes++
	return true, nil
}

func (s *Store) ListPendingByEmail(email string) ([]models.PendingEntitlement, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.listPending("ListPendingByEmail", 0, func(p models.PendingEntitlement) bool { return p.Email == email })
}

func (s *Store) ListPendingEntitlements(limit int) ([]models.PendingEntitlement, error) {
	return s.listPending("ListPendingEntitlements", limit, func(models.PendingEntitlement) bool { return true })
}

func (s *Store) listPending(method string, limit int, match func(models.PendingEntitlement) bool) ([]models.PendingEntitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(method); err != nil {
		return nil, err
	}
	out := []models.PendingEntitlement{}
	for _, p := range s.pending {
		if p.Status != models.EntitlementStatusPending || !match(p) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPendingPromoted(id, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkPendingPromoted"); err != nil {
		return err
	}
	for i := range s.pending {
		if s.pending[i].ID == id && s.pending[i].Status == models.EntitlementStatusPending {
			now := time.Now()
			acc := accountID
			s.pending[i].Status = models.EntitlementStatusPromoted
			s.pending[i].AccountID = &acc
			s.pending[i].PromotedAt = &now
			s.writes++
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}
