package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/audiophile-backend/api"
	"github.com/angelmondragon/audiophile-backend/api/routes"
	"github.com/angelmondragon/audiophile-backend/internal/auth"
	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/checkout"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/internal/pricing"
	"github.com/angelmondragon/audiophile-backend/internal/products"
	"github.com/angelmondragon/audiophile-backend/internal/users"
	stripewebhook "github.com/angelmondragon/audiophile-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/audiophile-backend/pkg/auth/session"
	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/metrics"
	"github.com/angelmondragon/audiophile-backend/pkg/migrate"
	"github.com/angelmondragon/audiophile-backend/pkg/outbox"
	"github.com/angelmondragon/audiophile-backend/pkg/redis"
	"github.com/angelmondragon/audiophile-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if cfg.MigratesOnStart() {
		if err := migrate.CatchUp(ctx, dbClient, logg); err != nil {
			return fmt.Errorf("dev migrations: %w", err)
		}
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	engine, err := pricing.NewEngine(cfg.Pricing)
	if err != nil {
		return fmt.Errorf("pricing engine: %w", err)
	}

	gormDB := dbClient.DB()
	userRepo := users.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	counts := cart.NewRedisCountCache(redisClient, cfg.Eventing.CartCountCacheTTL)

	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:     cartRepo,
		Tx:       dbClient,
		Products: products.NewRepository(gormDB),
		Counts:   counts,
		Logger:   logg,
	})
	if err != nil {
		return fmt.Errorf("cart service: %w", err)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(gormDB),
		Carts:   cartRepo,
		Users:   userRepo,
		Tx:      dbClient,
		Outbox:  outbox.NewEmitter(outbox.NewRepository(gormDB), logg),
		Pricing: engine,
		Counts:  cartService,
		Logger:  logg,
	})
	if err != nil {
		return fmt.Errorf("order service: %w", err)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Carts:    cartService,
		Orders:   orderService,
		Profiles: userRepo,
		Pricing:  engine,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		return fmt.Errorf("checkout service: %w", err)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Users:     userRepo,
		Sessions:  sessionManager,
		Passwords: security.NewHasher(cfg.Password),
		Carts:     cartService,
		JWTConfig: cfg.JWT,
		Logger:    logg,
	})
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		Registry:    registry,
		DB:          dbClient,
		Redis:       redisClient,
		RateLimits:  redisClient,
		Idempotency: redisClient,
		Sessions:    sessionManager,
		Auth:        authService,
		Carts:       cartService,
		Checkout:    checkoutService,
		Orders:      orderService,
	}

	providers, err := newPaymentProviders(ctx, cfg, logg)
	switch {
	case err != nil && cfg.App.IsDev():
		// Local runs without provider credentials keep the rest of the API up.
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "payment providers unavailable; payment routes disabled")
	case err != nil:
		return fmt.Errorf("payment providers: %w", err)
	default:
		if err := wirePayments(&deps, providers, cfg, logg, dbClient, cartRepo, orderService, cartService, paymentMetrics, redisClient); err != nil {
			return err
		}
	}

	addr := ":" + listenPort(cfg)
	srv := api.NewServer(addr, routes.NewRouter(deps))
	logg.Info(logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr}), "starting api server")

	return api.Serve(ctx, srv, logg)
}

func wirePayments(
	deps *routes.Dependencies,
	providers paymentProviders,
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	cartRepo *cart.Repository,
	ledger orders.Service,
	counts cart.Service,
	paymentMetrics *metrics.PaymentMetrics,
	redisClient *redis.Client,
) error {
	paymentService, err := newPaymentService(providers, cfg, logg, dbClient, cartRepo, ledger, counts, paymentMetrics)
	if err != nil {
		return fmt.Errorf("payment service: %w", err)
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: paymentService, Logger: logg})
	if err != nil {
		return fmt.Errorf("stripe webhook service: %w", err)
	}
	eventLedger, err := stripewebhook.NewEventLedger(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("stripe event ledger: %w", err)
	}

	deps.Payments = paymentService
	deps.StripeWebhook = webhookService
	deps.StripeWebhookLedger = eventLedger
	deps.StripeSigning = providers.stripe
	return nil
}

func listenPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return cfg.App.Port
}
