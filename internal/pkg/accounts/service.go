package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/ManuelReschke/SupplierHub/app/repository"
)

const maxReferralCodeAttempts = 10

var (
	ErrEmailTaken            = errors.New("email already registered")
	ErrInvalidAccount        = errors.New("invalid account data")
	ErrReferralCodeExhausted = errors.New("could not generate a unique referral code")
)

// Store provides the persistence used by the account service.
type Store interface {
	CreateAccount(account *models.Account) error
	ReferralCodeExists(code string) (bool, error)
	GetAccountByEmail(email string) (*models.Account, error)
	GetAccountByID(id string) (*models.Account, error)
	ListSalesByAccount(accountID string, offset, limit int) ([]models.Sale, error)
}

// PendingPromoter converts pending product grants of a new account.
type PendingPromoter interface {
	PromotePending(ctx context.Context, account *models.Account) (int, error)
}

// RegisterInput carries the data for a new account.
type RegisterInput struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// RegisterResult is the created account and the number of promoted grants.
type RegisterResult struct {
	Account  *models.Account `json:"account"`
	Promoted int             `json:"promoted_entitlements"`
}

type Service struct {
	store    Store
	promoter PendingPromoter
	newCode  func() (string, error)
}

func NewService(store Store, promoter PendingPromoter) *Service {
	return &Service{store: store, promoter: promoter, newCode: models.GenerateReferralCode}
}

// NewServiceFromDB creates an account service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, promoter PendingPromoter) *Service {
	return NewService(NewStore(db), promoter)
}

// Register creates an inactive account with an empty ledger and a unique
// referral code, then promotes any pending grants bought with its email.
// A failed promotion is logged; the periodic sweep retries it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	account, err := models.NewAccount(in.Email, in.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}

	if _, err := s.store.GetAccountByEmail(account.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	code, err := s.uniqueReferralCode()
	if err != nil {
		return nil, err
	}
	account.ReferralCode = code

	if err := s.store.CreateAccount(account); err != nil {
		return nil, err
	}
	logger := log.With().Str("account_id", account.ID).Str("referral_code", account.ReferralCode).Logger()
	logger.Info().Msg("account registered")

	result := &RegisterResult{Account: account}
	if s.promoter != nil {
		n, err := s.promoter.PromotePending(ctx, account)
		if err != nil {
			logger.Error().Err(err).Msg("failed to promote pending grants")
		}
		result.Promoted = n
	}
	return result, nil
}

func (s *Service) uniqueReferralCode() (string, error) {
	for i := 0; i < maxReferralCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		exists, err := s.store.ReferralCodeExists(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrReferralCodeExhausted
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Account, error) {
	_ = ctx
	return s.store.GetAccountByID(strings.TrimSpace(id))
}

// ListSales returns the sales credited to an account, newest first.
func (s *Service) ListSales(ctx context.Context, accountID string, offset, limit int) ([]models.Sale, error) {
	_ = ctx
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListSalesByAccount(strings.TrimSpace(accountID), offset, limit)
}

type gormStore struct {
	accounts repository.AccountRepository
	sales    repository.SaleRepository
}

// NewStore creates an account store backed by GORM.
func NewStore(db *gorm.DB) Store {
	repos := repository.NewRepositories(db)
	return &gormStore{accounts: repos.Account, sales: repos.Sale}
}

func (s *gormStore) CreateAccount(account *models.Account) error {
	return s.accounts.Create(account)
}

func (s *gormStore) ReferralCodeExists(code string) (bool, error) {
	return s.accounts.ReferralCodeExists(code)
}

func (s *gormStore) GetAccountByEmail(email string) (*models.Account, error) {
	return s.accounts.GetByEmail(email)
}

func (s *gormStore) GetAccountByID(id string) (*models.Account, error) {
	return s.accounts.GetByID(id)
}

func (s *gormStore) ListSalesByAccount(accountID string, offset, limit int) ([]models.Sale, error) {
	return s.sales.ListByAccount(accountID, offset, limit)
}
