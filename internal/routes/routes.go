package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/palm-pay/palm_pay/internal/account"
	"github.com/palm-pay/palm_pay/internal/config"
	"github.com/palm-pay/palm_pay/internal/ledger"
	"github.com/palm-pay/palm_pay/internal/middleware"
	"github.com/palm-pay/palm_pay/internal/notification"
	"github.com/palm-pay/palm_pay/internal/teller"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache and
// Notifier are optional; without them the service runs on the in-memory store,
// without idempotency or PIN attempt limiting, and logs notifications.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Cfg.IdempotencyRequired, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory store")
		store = ledger.NewInMemory()
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	auth, err := account.NewAuthenticator(store.Accounts(), d.Cfg.PINHashCost)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}
	accountSvc := account.NewService(store.Accounts(), d.Cfg.PINHashCost, d.Cfg.MaxBiometricBytes)
	tellerSvc := teller.NewService(store, auth, notifier, d.Logger, d.Cfg.HistoryLimit, d.Cfg.HistoryMaxLimit)

	accountHandler := account.NewHandler(accountSvc)
	tellerHandler := teller.NewHandler(tellerSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAccountRoutes(api, accountHandler)
	RegisterTellerRoutes(api, tellerHandler, middleware.PINAttempts(d.Cache, d.Cfg.PINAttemptsPerMin))

	return nil
}
