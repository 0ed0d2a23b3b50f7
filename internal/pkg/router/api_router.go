package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/SupplierHub/internal/pkg/middleware"
)

type WebhookRouter struct {
	deps Dependencies
}

func (w WebhookRouter) InstallRouter(app *fiber.App) {
	// All methods reach the handler, which answers 405 for anything but POST.
	app.All("/api/webhooks/stripe", w.deps.Webhook.HandleStripeWebhook)
}

func NewWebhookRouter(deps Dependencies) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	api.Get("/purchase/:session_id?", h.deps.Purchase.HandleGetPurchase)

	internal := api.Group("/internal", middleware.InternalTokenMiddleware(h.deps.InternalToken))
	internal.Post("/accounts", h.deps.Account.HandleRegister)
	internal.Get("/accounts/:id", h.deps.Account.HandleGetAccount)
	internal.Get("/accounts/:id/sales", h.deps.Account.HandleListSales)
	internal.Get("/accounts/:id/entitlements", h.deps.Account.HandleListEntitlements)
	internal.Get("/webhooks/stats", h.deps.Webhook.HandleWebhookStats)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
