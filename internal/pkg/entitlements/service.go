package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

// DefaultSweepBatch bounds the number of pending grants one sweep inspects.
const DefaultSweepBatch = 500

// Store provides the persistence used by the entitlement service.
type Store interface {
	GetAccountByEmail(email string) (*models.Account, error)
	CreateGrantIfNotExists(grant *models.ProductEntitlement) (bool, error)
	ListGrantsByAccount(accountID string) ([]models.ProductEntitlement, error)
	CreatePendingIfNotExists(pending *models.PendingEntitlement) (bool, error)
	ListPendingByEmail(email string) ([]models.PendingEntitlement, error)
	ListPendingEntitlements(limit int) ([]models.PendingEntitlement, error)
	MarkPendingPromoted(id, accountID string) error
}

// Service grants storefront products to accounts.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an entitlement service from an injected store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// NewServiceFromDB creates an entitlement service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewStore(db))
}

// Grant gives the account registered under email access to every product of
// a checkout session. Without such an account one pending grant per product
// is queued instead. Each product is attempted even if another fails.
func (s *Service) Grant(ctx context.Context, email, sessionID string, productIDs []string) error {
	_ = ctx
	email = normalizeEmail(email)
	sessionID = strings.TrimSpace(sessionID)
	if email == "" || sessionID == "" {
		return errors.New("email and session id are required")
	}
	products := uniqueProducts(productIDs)
	if len(products) == 0 {
		return nil
	}
	logger := log.With().Str("session_id", sessionID).Str("email", email).Logger()

	account, err := s.store.GetAccountByEmail(email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup account by email: %w", err)
	}

	now := s.now()
	var errs []error
	for _, productID := range products {
		if account != nil {
			created, err := s.store.CreateGrantIfNotExists(&models.ProductEntitlement{
				AccountID: account.ID,
				ProductID: productID,
				SessionID: sessionID,
				GrantedAt: now,
				Status:    models.EntitlementStatusActive,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("grant %s: %w", productID, err))
				continue
			}
			if created {
				logger.Info().Str("account_id", account.ID).Str("product_id", productID).Msg("product access granted")
			}
			continue
		}

		created, err := s.store.CreatePendingIfNotExists(&models.PendingEntitlement{
			Email:       email,
			ProductID:   productID,
			SessionID:   sessionID,
			PurchasedAt: now,
			Status:      models.EntitlementStatusPending,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("queue pending %s: %w", productID, err))
			continue
		}
		if created {
			logger.Info().Str("product_id", productID).Msg("no account for email; pending grant queued")
		}
	}
	return errors.Join(errs...)
}

// PromotePending converts every pending grant queued under the account's
// email into an active grant. It returns the number of promoted rows.
func (s *Service) PromotePending(ctx context.Context, account *models.Account) (int, error) {
	if account == nil {
		return 0, errors.New("account is required")
	}
	pending, err := s.store.ListPendingByEmail(account.Email)
	if err != nil {
		return 0, fmt.Errorf("list pending grants: %w", err)
	}
	return s.promote(ctx, account, pending)
}

// SweepPending promotes pending grants whose email has since been registered.
func (s *Service) SweepPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultSweepBatch
	}
	pending, err := s.store.ListPendingEntitlements(limit)
	if err != nil {
		return 0, fmt.Errorf("list pending grants: %w", err)
	}

	byEmail := make(map[string][]models.PendingEntitlement)
	order := make([]string, 0)
	for _, p := range pending {
		if _, ok := byEmail[p.Email]; !ok {
			order = append(order, p.Email)
		}
		byEmail[p.Email] = append(byEmail[p.Email], p)
	}

	total := 0
	var errs []error
	for _, email := range order {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		account, err := s.store.GetAccountByEmail(email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("lookup account by email: %w", err))
			continue
		}
		n, err := s.promote(ctx, account, byEmail[email])
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *Service) promote(ctx context.Context, account *models.Account, pending []models.PendingEntitlement) (int, error) {
	_ = ctx
	promoted := 0
	var errs []error
	for _, p := range pending {
		if p.Status != models.EntitlementStatusPending {
			continue
		}
		if _, err := s.store.CreateGrantIfNotExists(&models.ProductEntitlement{
			AccountID: account.ID,
			ProductID: p.ProductID,
			SessionID: p.SessionID,
			GrantedAt: s.now(),
			Status:    models.EntitlementStatusActive,
		}); err != nil {
			errs = append(errs, fmt.Errorf("promote %s: %w", p.ID, err))
			continue
		}
		if err := s.store.MarkPendingPromoted(p.ID, account.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("mark %s promoted: %w", p.ID, err))
			continue
		}
		promoted++
	}
	if promoted > 0 {
		log.Info().Str("account_id", account.ID).Int("promoted", promoted).Msg("pending grants promoted")
	}
	return promoted, errors.Join(errs...)
}

// ListGrants returns every product grant of an account.
func (s *Service) ListGrants(ctx context.Context, accountID string) ([]models.ProductEntitlement, error) {
	_ = ctx
	return s.store.ListGrantsByAccount(strings.TrimSpace(accountID))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func uniqueProducts(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
