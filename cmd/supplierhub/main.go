package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ManuelReschke/SupplierHub/app/controllers"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/accounts"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/billing"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/cache"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/database"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/entitlements"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/env"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/router"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/s3archive"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/scheduler"
)

func main() {
	app, sched := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		if err := sched.Shutdown(); err != nil {
			log.Error().Err(err).Msg("scheduler shutdown failed")
		}
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	if env.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func NewApplication() (*fiber.App, *scheduler.Scheduler) {
	env.SetupEnvFile()
	setupLogger()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	rdb := cache.GetClient()

	verifier, err := billing.NewVerifierFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("webhook verifier not configured")
	}
	policy, err := billing.CommissionPolicyFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid commission policy")
	}

	entitlementService := entitlements.NewServiceFromDB(db)
	opts := []billing.Option{
		billing.WithCommissionPolicy(policy),
		billing.WithLocker(cache.NewLocker(rdb)),
	}

	archiveCfg, err := s3archive.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid S3 archive configuration")
	}
	if archiveCfg.IsEnabled() {
		archive, err := s3archive.NewClient(context.Background(), archiveCfg)
		if err != nil {
			log.Error().Err(err).Msg("S3 archive unavailable; continuing without it")
		} else {
			opts = append(opts, billing.WithArchiver(archive))
		}
	}

	billingService := billing.NewServiceFromDB(db, entitlementService, opts...)
	accountService := accounts.NewServiceFromDB(db, entitlementService)
	stats := counter.New(rdb, db)

	schedCfg, err := scheduler.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid scheduler configuration")
	}
	sched, err := scheduler.Start(schedCfg, entitlementService, stats)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: env.GetEnv("OPENAPI_FILE", "./public/docs/v1/openapi.yml"),
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	deps := router.Dependencies{
		Webhook:       controllers.NewWebhookController(verifier, billingService, stats),
		Purchase:      controllers.NewPurchaseController(billingService),
		Account:       controllers.NewAccountController(accountService, entitlementService),
		InternalToken: env.GetEnv("INTERNAL_API_TOKEN", ""),
	}
	if err := rdb.Ping(context.Background()).Err(); err == nil {
		deps.LimiterStorage = router.NewLimiterStorage(rdb)
	} else {
		log.Warn().Err(err).Msg("cache unavailable; rate limiter keeps counts in memory")
	}

	// ROUTER
	router.InstallRouter(app, deps)

	return app, sched
}
