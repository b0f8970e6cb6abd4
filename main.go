package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/utils"

	"tickethub_backend/internals/configs"
	database "tickethub_backend/internals/databases"
	"tickethub_backend/internals/features/payments/gateway"
	paymentModel "tickethub_backend/internals/features/payments/model"
	registrationService "tickethub_backend/internals/features/registrations/service"
	userService "tickethub_backend/internals/features/users/service"
	"tickethub_backend/internals/helpers/encryption"
	middlewares "tickethub_backend/internals/middlewares"
	routes "tickethub_backend/internals/route"
)

func main() {
	configs.LoadEnv()

	app := fiber.New(fiber.Config{
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ProxyHeader:           fiber.HeaderXForwardedFor,
	})

	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())

	// Request-ID + timing
	app.Use(func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = utils.UUID()
		}
		c.Set("X-Request-ID", id)
		c.Locals("reqid", id)
		start := time.Now()
		// Webhook handlers talk to the provider's API inline, so they get a
		// longer budget than ordinary requests.
		budget := 5 * time.Second
		if len(c.Path()) >= len("/api/webhooks/") && c.Path()[:len("/api/webhooks/")] == "/api/webhooks/" {
			budget = 25 * time.Second
		}
		ctx, cancel := context.WithTimeout(c.Context(), budget)
		defer cancel()
		c.SetUserContext(ctx)
		err := c.Next()
		dur := time.Since(start)
		log.Printf("[REQ] id=%s %s %s status=%d dur=%s", id, c.Method(), c.OriginalURL(), c.Response().StatusCode(), dur)
		return err
	})

	middlewares.SetupMiddlewares(app)

	database.ConnectDB()
	database.TunePool()
	database.Migrate()
	database.WarmUpQueries()

	// Payment adapters: only providers with credentials get registered, so a
	// deployment can run Stripe-only without dummy keys for the rest.
	registry := gateway.NewRegistry()
	if configs.StripeSecretKey != "" {
		registry.Register(paymentModel.PaymentProviderStripe,
			gateway.NewStripeGateway(configs.StripeSecretKey, configs.StripeWebhookSecret))
	}
	if configs.SquareAccessToken != "" {
		registry.Register(paymentModel.PaymentProviderSquare,
			gateway.NewSquareGateway(configs.SquareAccessToken, configs.SquareSignatureKey,
				configs.SquareLocationID, configs.SquareUseSandbox))
	}
	if configs.MidtransServerKey != "" {
		registry.Register(paymentModel.PaymentProviderMidtrans,
			gateway.NewMidtransGateway(configs.MidtransServerKey, configs.MidtransUseProduction))
	}

	keyCache := encryption.NewKeyCache()
	keys := userService.NewKeyService(database.DB, configs.DBEncryptionKey, configs.JWTSecret, keyCache)
	ledger := registrationService.NewLedgerService(database.DB, configs.ReservationStale)
	notifier := registrationService.NewNotifier()
	registrations := registrationService.NewRegistrationService(
		database.DB, registry, ledger, notifier, configs.DBEncryptionKey)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	routes.SetupRoutes(app, routes.Deps{
		DB:            database.DB,
		Gateways:      registry,
		Keys:          keys,
		Registrations: registrations,
	})

	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	go func() {
		log.Printf("[INFO] Listening on :%s", port)
		if err := app.Listen("0.0.0.0:" + port); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)

	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
