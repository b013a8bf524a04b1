package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketcore-backend/internal/cron"
	"github.com/angelmondragon/marketcore-backend/internal/inventory"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/returns"
	"github.com/angelmondragon/marketcore-backend/internal/wallet"
	"github.com/angelmondragon/marketcore-backend/pkg/adminserver"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
	"github.com/angelmondragon/marketcore-backend/pkg/workerpool"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
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

	frequent, daily, err := buildSchedules(cfg, logg, dbClient, redisClient, pool)
	if err != nil {
		logg.Error(ctx, "failed to build cron schedules", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return frequent.Run(groupCtx) })
	group.Go(func() error { return daily.Run(groupCtx) })
	admin := adminserver.New(cfg.Workers.AdminAddr, prometheus.DefaultGatherer, map[string]adminserver.Probe{
		"database": dbClient.Ping,
		"redis":    redisClient.Ping,
	}, logg)
	group.Go(func() error { return admin.Run(groupCtx) })
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildSchedules(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, pool *workerpool.Pool) (*cron.Schedule, *cron.Schedule, error) {
	conn := dbClient.DB()
	repo := cron.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	notifyRepo := notifications.NewRepository(conn)
	inbox, err := notifications.NewService(notifyRepo)
	if err != nil {
		return nil, nil, err
	}
	emails, err := notifications.NewEmailer(notifyRepo, notifications.NewMailer(cfg.Sendgrid, logg), pool, logg)
	if err != nil {
		return nil, nil, err
	}

	walletSvc, err := wallet.NewService(wallet.NewRepository(conn), dbClient, emitter, logg)
	if err != nil {
		return nil, nil, err
	}
	returnsSvc, err := returns.NewService(returns.ServiceParams{
		Repo:              returns.NewRepository(conn),
		TransactionRunner: dbClient,
		Outbox:            emitter,
		Stock:             inventory.NewService(emitter, logg),
		Refunds:           walletSvc,
		Queue:             pool,
		Logger:            logg,
	})
	if err != nil {
		return nil, nil, err
	}

	orderEmails, err := cron.NewOrderEmailJob(cron.OrderEmailJobParams{
		Logger:        logg,
		Repository:    repo,
		Mailer:        emails,
		StorefrontURL: cfg.Storefront.BaseURL,
		Window:        cfg.Scheduler.OrderEmailWindow,
	})
	if err != nil {
		return nil, nil, err
	}
	wishlist, err := cron.NewWishlistReminderJob(cron.ReminderJobParams{
		Logger:        logg,
		Repository:    repo,
		Notifier:      inbox,
		Mailer:        emails,
		StorefrontURL: cfg.Storefront.BaseURL,
		After:         cfg.Scheduler.WishlistAfter,
	})
	if err != nil {
		return nil, nil, err
	}
	cart, err := cron.NewCartReminderJob(cron.ReminderJobParams{
		Logger:        logg,
		Repository:    repo,
		Notifier:      inbox,
		Mailer:        emails,
		StorefrontURL: cfg.Storefront.BaseURL,
		After:         cfg.Scheduler.CartAfter,
	})
	if err != nil {
		return nil, nil, err
	}
	stock, err := cron.NewStockAlertJob(cron.StockAlertJobParams{
		Logger:     logg,
		Repository: repo,
		Notifier:   inbox,
		Mailer:     emails,
		Threshold:  cfg.Scheduler.LowStockThreshold,
	})
	if err != nil {
		return nil, nil, err
	}
	refunds, err := cron.NewRefundSweepJob(logg, returnsSvc, time.Hour)
	if err != nil {
		return nil, nil, err
	}
	retention := cron.RetentionJobParams{Logger: logg, DB: dbClient}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.RetentionJobParams{
		Logger:    logg,
		DB:        dbClient,
		Retention: cfg.Outbox.Retention,
	}, outboxRepo)
	if err != nil {
		return nil, nil, err
	}
	inboxCleanup, err := cron.NewNotificationCleanupJob(retention, repo)
	if err != nil {
		return nil, nil, err
	}

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	newSchedule := func(name string, interval time.Duration, jobs ...cron.Job) (*cron.Schedule, error) {
		lock, err := cron.NewRedisLock(redisClient, cron.LockKey(cfg.App.Env, name), cfg.Scheduler.LockTTL)
		if err != nil {
			return nil, err
		}
		return cron.NewSchedule(cron.ScheduleParams{
			Name:       name,
			Interval:   interval,
			JobTimeout: cfg.Scheduler.JobTimeout,
			Lock:       lock,
			Logger:     logg,
			Metrics:    jobMetrics,
		}, jobs...)
	}

	frequent, err := newSchedule("frequent", cfg.Scheduler.OrderEmailInterval, orderEmails, refunds)
	if err != nil {
		return nil, nil, err
	}
	daily, err := newSchedule("daily", cfg.Scheduler.DailyInterval, wishlist, cart, stock, outboxRetention, inboxCleanup)
	if err != nil {
		return nil, nil, err
	}
	return frequent, daily, nil
}
