package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/cron"
	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/metrics"
	"github.com/angelmondragon/audiophile-backend/pkg/migrate"
	"github.com/angelmondragon/audiophile-backend/pkg/outbox"
	"github.com/angelmondragon/audiophile-backend/pkg/redis"
)

type options struct {
	once        bool
	metricsAddr string
}

func main() {
	var opts options
	flag.BoolVar(&opts.once, "once", false, "run one maintenance cycle and exit")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "cron-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) (err error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = "cron-worker"
	logg := logger.New(logger.Options{
		ServiceName: cfg.Service.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if cfg.MigratesOnStart() {
		if err := migrate.CatchUp(ctx, dbClient, logg); err != nil {
			return fmt.Errorf("dev migrations: %w", err)
		}
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	// The lease outlives one cycle so a slow sweep is never run twice.
	lease, err := cron.NewRedisLease(redisClient, redisClient.MaintenanceLeaseKey(cfg.App.Env), cfg.Cron.Interval+time.Hour)
	if err != nil {
		return err
	}
	jobs, err := maintenanceJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     jobs,
		Lease:    lease,
		Metrics:  metrics.NewMaintenanceMetrics(registry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	if opts.once {
		report, err := service.RunOnce(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithFields(ctx, map[string]any{"skipped": report.Skipped, "rows_removed": report.Removed}), "maintenance cycle finished")
		return nil
	}

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "cron.metrics_server_failed", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}()
	}

	logg.Info(ctx, "starting cron worker")
	err = service.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logg.Info(ctx, "cron worker shutting down gracefully")
	}
	return err
}

// maintenanceJobs lists the sweeps one cycle runs, in order.
func maintenanceJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:         logg,
		DB:             dbClient,
		Repository:     outbox.NewRepository(dbClient.DB()),
		RetentionDays:  cfg.Cron.OutboxRetentionDays,
		ParkedAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	cartJob, err := cron.NewStaleCartJob(cron.StaleCartJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: cart.NewRepository(dbClient.DB()),
		MaxAge:     cfg.Session.CartCookieTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("stale cart job: %w", err)
	}
	return []cron.Job{outboxJob, cartJob}, nil
}
