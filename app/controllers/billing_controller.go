package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/billing"
)

const webhookTimeout = 15 * time.Second

// WebhookStats counts webhook outcomes and reports them.
type WebhookStats interface {
	AddWebhookOutcome(ctx context.Context, outcome string) error
	Pending(ctx context.Context) (map[string]map[string]int64, error)
	Daily(ctx context.Context, days int) ([]models.WebhookDailyStat, error)
}

type WebhookController struct {
	verifier *billing.Verifier
	service  *billing.Service
	stats    WebhookStats
}

// NewWebhookController creates the payment webhook handler. stats may be nil.
func NewWebhookController(verifier *billing.Verifier, service *billing.Service, stats WebhookStats) *WebhookController {
	return &WebhookController{verifier: verifier, service: service, stats: stats}
}

// HandleStripeWebhook verifies the raw body before anything else and only
// then hands the event to the billing service.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		c.Set(fiber.HeaderAllow, fiber.MethodPost)
		return errorResponse(c, fiber.StatusMethodNotAllowed, "method_not_allowed", "Only POST is supported")
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	event, err := wc.verifier.Verify(rawBody, c.Get(billing.SignatureHeader))
	if err != nil {
		if errors.Is(err, billing.ErrValidation) {
			wc.count(c, models.WebhookOutcomeInvalidPayload)
			return errorResponse(c, fiber.StatusBadRequest, "invalid_payload", "Webhook payload could not be decoded")
		}
		log.Warn().Err(err).Str("ip", c.IP()).Msg("webhook signature rejected")
		wc.count(c, models.WebhookOutcomeInvalidSignature)
		return errorResponse(c, fiber.StatusBadRequest, "invalid_signature", "Invalid webhook signature")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	result, err := wc.service.ProcessWebhook(ctx, event, rawBody)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrEventInFlight):
		wc.count(c, models.WebhookOutcomeInFlight)
		return errorResponse(c, fiber.StatusConflict, "webhook_in_flight", "Webhook is being processed; retry later")
	case errors.Is(err, billing.ErrValidation):
		log.Warn().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("webhook payload rejected")
		wc.count(c, models.WebhookOutcomeInvalidPayload)
		return errorResponse(c, fiber.StatusBadRequest, "invalid_payload", "Webhook payload is invalid")
	default:
		log.Error().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("webhook processing failed")
		wc.count(c, models.WebhookOutcomeFailed)
		return errorResponse(c, fiber.StatusInternalServerError, "webhook_processing_failed", "Failed to process webhook")
	}

	if result.Duplicate {
		wc.count(c, models.WebhookOutcomeDuplicate)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}
	wc.count(c, models.WebhookOutcomeProcessed)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// HandleWebhookStats reports buffered and flushed webhook outcome counts.
func (wc *WebhookController) HandleWebhookStats(c *fiber.Ctx) error {
	if wc.stats == nil {
		return errorResponse(c, fiber.StatusServiceUnavailable, "stats_unavailable", "Webhook stats are not configured")
	}
	days := queryInt(c, "days", 7)
	if days < 1 || days > 90 {
		days = 7
	}

	pending, err := wc.stats.Pending(c.UserContext())
	if err != nil {
		log.Error().Err(err).Msg("failed to read pending webhook stats")
		return errorResponse(c, fiber.StatusInternalServerError, "stats_failed", "Failed to read webhook stats")
	}
	daily, err := wc.stats.Daily(c.UserContext(), days)
	if err != nil {
		log.Error().Err(err).Msg("failed to read daily webhook stats")
		return errorResponse(c, fiber.StatusInternalServerError, "stats_failed", "Failed to read webhook stats")
	}
	return c.JSON(fiber.Map{"pending": pending, "daily": daily})
}

func (wc *WebhookController) count(c *fiber.Ctx, outcome string) {
	if wc.stats == nil {
		return
	}
	if err := wc.stats.AddWebhookOutcome(c.UserContext(), outcome); err != nil {
		log.Debug().Err(err).Str("outcome", outcome).Msg("failed to count webhook outcome")
	}
}

type PurchaseController struct {
	service *billing.Service
}

func NewPurchaseController(service *billing.Service) *PurchaseController {
	return &PurchaseController{service: service}
}

// HandleGetPurchase returns the purchase recorded for a checkout session.
func (pc *PurchaseController) HandleGetPurchase(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	if sessionID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "missing_session_id", "Session ID is required")
	}

	purchase, err := pc.service.GetPurchase(c.UserContext(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return errorResponse(c, fiber.StatusNotFound, "purchase_not_found", "Purchase not found")
		case errors.Is(err, billing.ErrValidation):
			return errorResponse(c, fiber.StatusBadRequest, "missing_session_id", "Session ID is required")
		default:
			log.Error().Err(err).Str("session_id", sessionID).Msg("purchase lookup failed")
			return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load purchase")
		}
	}
	return c.JSON(purchase)
}
