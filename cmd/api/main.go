package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcore-backend/api/routes"
	"github.com/angelmondragon/marketcore-backend/internal/auth"
	"github.com/angelmondragon/marketcore-backend/internal/inventory"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payments"
	"github.com/angelmondragon/marketcore-backend/internal/payments/gateways"
	"github.com/angelmondragon/marketcore-backend/internal/returns"
	"github.com/angelmondragon/marketcore-backend/internal/settlement"
	"github.com/angelmondragon/marketcore-backend/internal/users"
	"github.com/angelmondragon/marketcore-backend/internal/wallet"
	"github.com/angelmondragon/marketcore-backend/pkg/auth/session"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
	"github.com/angelmondragon/marketcore-backend/pkg/security"
	"github.com/angelmondragon/marketcore-backend/pkg/stripe"
	"github.com/angelmondragon/marketcore-backend/pkg/workerpool"
)

const shutdownTimeout = 20 * time.Second

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

	services, err := buildServices(ctx, cfg, logg, dbClient, redisClient, pool)
	if err != nil {
		logg.Error(ctx, "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, pool *workerpool.Pool) (routes.Services, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	stock := inventory.NewService(emitter, logg)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return routes.Services{}, err
	}
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(conn),
		SessionManager: sessionManager,
		Passwords:      security.NewHasher(cfg.Password),
	})
	if err != nil {
		return routes.Services{}, err
	}

	settlementSvc, err := settlement.NewService(settlement.NewRepository(conn), dbClient, emitter, logg)
	if err != nil {
		return routes.Services{}, err
	}
	ordersSvc, err := orders.NewService(orders.NewRepository(conn), dbClient, emitter, stock, settlementSvc, logg)
	if err != nil {
		return routes.Services{}, err
	}

	// Stripe is optional; without credentials it stays out of the catalogue.
	var stripeAPI gateways.StripeAPI
	if stripeClient, err := stripe.NewClient(ctx, cfg.Gateways.Stripe, logg); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "stripe gateway disabled")
	} else {
		stripeAPI = stripeClient
	}
	factory := gateways.NewDefaultFactory(cfg.Gateways, stripeAPI, metrics.NewGatewayMetrics(prometheus.DefaultRegisterer), logg)

	guard, err := payments.NewWebhookGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return routes.Services{}, err
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(conn),
		Gateways:          factory,
		Orders:            ordersSvc,
		TransactionRunner: dbClient,
		Outbox:            emitter,
		Guard:             guard,
		Logger:            logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	walletSvc, err := wallet.NewService(wallet.NewRepository(conn), dbClient, emitter, logg)
	if err != nil {
		return routes.Services{}, err
	}
	returnsSvc, err := returns.NewService(returns.ServiceParams{
		Repo:              returns.NewRepository(conn),
		TransactionRunner: dbClient,
		Outbox:            emitter,
		Stock:             stock,
		Refunds:           walletSvc,
		Queue:             pool,
		Logger:            logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	inbox, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Auth:          authService,
		Orders:        ordersSvc,
		Payments:      paymentsSvc,
		Returns:       returnsSvc,
		Wallet:        walletSvc,
		Settlement:    settlementSvc,
		Notifications: inbox,
	}, nil
}
