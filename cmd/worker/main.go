package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcore-backend/internal/analytics/router"
	"github.com/angelmondragon/marketcore-backend/internal/analytics/worker"
	"github.com/angelmondragon/marketcore-backend/internal/analytics/writer"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/adminserver"
	"github.com/angelmondragon/marketcore-backend/pkg/bigquery"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketcore-backend/pkg/pubsub"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
	"github.com/angelmondragon/marketcore-backend/pkg/workerpool"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	pool := workerpool.Start(ctx, workerpool.Options{
		Workers:   cfg.Workers.PoolSize,
		QueueSize: cfg.Workers.QueueSize,
		Logger:    logg,
		Metrics:   metrics.NewPoolMetrics(prometheus.DefaultRegisterer),
	})
	defer func() {
		if err := pool.Stop(); err != nil {
			logg.Error(context.Background(), "worker pool stopped with error", err)
		}
	}()

	events, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(logg, "event registry", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(logg, "idempotency manager", err)

	conn := dbClient.DB()
	notifyRepo := notifications.NewRepository(conn)
	inbox, err := notifications.NewService(notifyRepo)
	requireResource(logg, "notification service", err)
	emails, err := notifications.NewEmailer(notifyRepo, notifications.NewMailer(cfg.Sendgrid, logg), pool, logg)
	requireResource(logg, "emailer", err)
	fanout, err := notifications.NewFanout(notifyRepo, dbClient, inbox, emails, cfg.Storefront.BaseURL, logg)
	requireResource(logg, "notification fanout", err)

	notificationSub := pubsubClient.NotificationSubscription()
	if notificationSub == nil {
		requireResource(logg, "notification subscription", errors.New("subscription not configured"))
	}
	notificationConsumer, err := notifications.NewConsumer(notificationSub, events, fanout, manager, logg)
	requireResource(logg, "notification consumer", err)

	deps := map[string]pinger{"database": dbClient, "redis": redisClient, "pubsub": pubsubClient}
	consumers := map[string]runner{"notifications": notificationConsumer}

	if strings.TrimSpace(cfg.PubSub.AnalyticsSubscription) != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg,
			writer.PipelineTable(cfg.BigQuery.PipelineEventsTable))
		requireResource(logg, "bigquery", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()

		pipelineWriter, err := writer.New(bqClient, writer.Config{
			Table:     cfg.BigQuery.PipelineEventsTable,
			BatchSize: cfg.BigQuery.BatchSize,
		})
		requireResource(logg, "analytics writer", err)
		rowRouter, err := router.NewRouter(pipelineWriter, logg)
		requireResource(logg, "analytics router", err)
		analytics, err := worker.NewService(worker.ServiceParams{
			Subscription:  pubsubClient.AnalyticsSubscription(),
			Registry:      events,
			Handler:       rowRouter,
			Idempotency:   manager,
			Logger:        logg,
			Flusher:       pipelineWriter,
			FlushInterval: cfg.BigQuery.FlushInterval,
		})
		requireResource(logg, "analytics worker", err)

		deps["bigquery"] = bqClient
		consumers["analytics"] = analytics
	} else {
		logg.Warn(ctx, "analytics sink disabled")
	}

	service, err := NewService(ServiceParams{
		Logger:       logg,
		Dependencies: deps,
		Consumers:    consumers,
		Admin:        adminserver.New(cfg.Workers.AdminAddr, prometheus.DefaultGatherer, probes(deps), logg),
	})
	requireResource(logg, "worker service", err)

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "resource not working: "+resource, err)
	os.Exit(1)
}
