package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/audiophile-backend/pkg/config"
	"github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/migrate"
	"github.com/angelmondragon/audiophile-backend/pkg/outbox"
	"github.com/angelmondragon/audiophile-backend/pkg/pubsub"
)

func main() {
	drain := flag.Bool("drain", false, "relay until the outbox is empty, then exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *drain); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "outbox-publisher: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, drain bool) (err error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("connect pubsub: %w", err)
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	sink, err := newTopicSink(pubsubClient.OrdersPublisher())
	if err != nil {
		return err
	}
	relay, err := NewRelay(RelayParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Store:  outbox.NewRepository(dbClient.DB()),
		Sink:   sink,
		Ready:  pubsubClient.Ping,
	})
	if err != nil {
		return err
	}

	if drain {
		report, err := relay.Drain(ctx)
		logg.Info(logg.WithFields(ctx, report.fields()), "outbox drained")
		return err
	}

	logg.Info(ctx, "starting outbox publisher")
	err = relay.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logg.Info(ctx, "outbox publisher shutting down gracefully")
	}
	return err
}
