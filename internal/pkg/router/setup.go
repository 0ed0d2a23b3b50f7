package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SupplierHub/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries the constructed controllers and route settings.
type Dependencies struct {
	Webhook       *controllers.WebhookController
	Purchase      *controllers.PurchaseController
	Account       *controllers.AccountController
	InternalToken string
	// LimiterStorage backs the /api rate limiter; nil keeps counts in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// The webhook route is registered ahead of the /api group so provider
	// retries are never rate limited.
	setup(app, NewWebhookRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
