package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

const webhookLockTTL = 2 * time.Minute

// Service reconciles verified payment webhooks into accounts, ledgers and grants.
type Service struct {
	repo     Repository
	granter  AccessGranter
	policy   CommissionPolicy
	locker   Locker
	archiver Archiver
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLocker enables per-event locking across concurrent deliveries.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithArchiver stores every newly recorded payload.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithCommissionPolicy overrides the default commission rates.
func WithCommissionPolicy(p CommissionPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, granter AccessGranter, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		granter: granter,
		policy:  DefaultCommissionPolicy(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, granter AccessGranter, opts ...Option) *Service {
	return NewService(NewRepository(db), granter, opts...)
}

// ProcessWebhook records a verified event, skips replays of events that were
// already handled successfully and dispatches everything else. Malformed
// payloads are rejected before anything is locked, recorded or archived.
func (s *Service) ProcessWebhook(ctx context.Context, raw stripe.Event, payload []byte) (*WebhookResult, error) {
	eventID := webhookEventID(raw.ID, payload)
	result := &WebhookResult{EventID: eventID, EventType: string(raw.Type)}
	logger := log.With().Str("event_id", eventID).Str("type", result.EventType).Logger()

	ev, err := DecodeEvent(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("webhook payload rejected")
		return nil, err
	}
	result.Kind = ev.Kind

	if s.locker != nil {
		release, acquired, err := s.locker.Acquire(ctx, "billing:webhook:"+models.BillingProviderStripe+":"+eventID, webhookLockTTL)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("webhook lock unavailable; relying on store idempotency")
		case !acquired:
			return nil, ErrEventInFlight
		default:
			defer release()
		}
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       result.EventType,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return nil, storeErr("record webhook event", err)
	}
	if !created && stored.ProcessedOK() {
		logger.Info().Msg("webhook event already processed")
		result.Duplicate = true
		return result, nil
	}
	if created && s.archiver != nil {
		if err := s.archiver.Archive(ctx, eventID, s.now(), payload); err != nil {
			logger.Warn().Err(err).Msg("failed to archive webhook payload")
		}
	}

	handleErr := s.HandleEvent(ctx, ev)
	s.markProcessed(ctx, stored.ID, handleErr)
	if handleErr != nil {
		return nil, handleErr
	}
	return result, nil
}

func (s *Service) markProcessed(ctx context.Context, id string, processingErr error) {
	if err := s.MarkWebhookProcessed(ctx, id, processingErr); err != nil {
		log.Error().Err(err).Str("webhook_event_id", id).Msg("failed to mark webhook event processed")
	}
}

// HandleEvent dispatches a decoded event to its reconciler.
func (s *Service) HandleEvent(ctx context.Context, ev *Event) error {
	if ev == nil {
		return validationErr("event is nil")
	}
	switch ev.Kind {
	case KindSubscriptionChanged:
		return s.ReconcileSubscription(ctx, ev.ID, ev.Subscription)
	case KindSubscriptionDeleted:
		return s.CancelSubscription(ctx, ev.ID, ev.Subscription)
	case KindCheckoutCompleted:
		return s.ProcessCheckoutCompleted(ctx, ev.ID, ev.Checkout)
	case KindIgnored:
		log.Info().Str("event_id", ev.ID).Str("type", ev.Type).Msg("webhook ignored (unhandled type)")
		return nil
	default:
		return validationErr("unknown event kind %d", ev.Kind)
	}
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: webhookEventID(in.ProviderEventID, []byte(in.PayloadJSON)),
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID string, processingErr error) error {
	_ = ctx
	if strings.TrimSpace(webhookEventID) == "" {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// webhookEventID falls back to a payload hash for events without an id.
func webhookEventID(id string, payload []byte) string {
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		return trimmed
	}
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}
