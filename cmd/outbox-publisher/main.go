package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketcore-backend/internal/relay"
	"github.com/angelmondragon/marketcore-backend/pkg/adminserver"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketcore-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.New(logger.Options{ServiceName: serviceKind}).Warn(context.Background(), "could not read .env")
	}
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	boot := context.Background()
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(boot, "failed to load config", err)
		return err
	}
	cfg.Service.Kind = serviceKind
	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(boot, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(boot, "failed to bootstrap database", err)
		return err
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		logg.Error(boot, "failed to run dev migrations", err)
		return err
	}

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(boot, "failed to bootstrap pubsub", err)
		return err
	}
	defer pubsubClient.Close()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(boot, "failed to build event registry", err)
		return err
	}

	r, err := relay.New(relay.Params{
		DB:        dbClient,
		Store:     outbox.NewRepository(dbClient.DB()),
		Resolver:  eventRegistry,
		Publisher: relay.PubSubPublisher{Client: pubsubClient},
		Logger:    logg,
		Metrics:   metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
		Config:    cfg.Outbox,
	})
	if err != nil {
		logg.Error(boot, "failed to create outbox relay", err)
		return err
	}

	ctx, stop := signal.NotifyContext(boot, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	admin := adminserver.New(cfg.Workers.AdminAddr, prometheus.DefaultGatherer, map[string]adminserver.Probe{
		"database": dbClient.Ping,
		"pubsub":   pubsubClient.Ping,
	}, logg)

	logg.Info(ctx, "starting outbox relay")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return r.Run(groupCtx) })
	group.Go(func() error { return admin.Run(groupCtx) })
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox relay stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "outbox relay shut down")
	return nil
}
