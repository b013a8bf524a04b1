package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketcore-backend/api/controllers"
	authcontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/auth"
	notificationcontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/notifications"
	ordercontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/payments"
	returncontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/returns"
	walletcontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/wallet"
	withdrawcontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/withdrawals"
	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/internal/auth"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	pkgauth "github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
)

// Services groups the domain services exposed over HTTP.
type Services struct {
	Auth          auth.Service
	Orders        orders.Service
	Payments      paymentcontrollers.Service
	Returns       returncontrollers.Service
	Wallet        walletcontrollers.Service
	Settlement    withdrawcontrollers.Service
	Notifications notifications.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Storefront.AllowedOrigins),
	)

	// A nil *redis.Client must not become a non-nil interface.
	var idemStore redis.IdempotencyStore
	deps := map[string]controllers.Pinger{"db": dbP}
	if redisClient != nil {
		idemStore = redisClient
		deps["redis"] = redisClient
	}
	idem := middleware.NewIdempotencyGuard(idemStore, cfg.Eventing.RequestIdempotencyTTL, logg)
	authRequired := middleware.Auth(cfg.JWT, logg)
	authOptional := middleware.OptionalAuth(cfg.JWT, logg)
	can := func(perms ...string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(logg, perms...)
	}

	throttle := middleware.LoginThrottleFromConfig(cfg.AuthRateLimit)
	loginLimit := middleware.AuthRateLimit(throttle, nil, logg)
	if redisClient != nil {
		loginLimit = middleware.AuthRateLimit(throttle, redisClient, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(deps, logg))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/token", authcontrollers.Token(svc.Auth, logg))
		r.Post("/refresh", authcontrollers.Refresh(svc.Auth, logg))
		r.Post("/logout", authcontrollers.Logout(svc.Auth, logg))
	})

	r.Route("/order", func(r chi.Router) {
		r.Get("/tracking/{tracking_no}", ordercontrollers.Tracking(svc.Orders, logg))
		r.With(authOptional, idem.Optional).Post("/create", ordercontrollers.Create(svc.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(authRequired)
			r.Get("/my", ordercontrollers.Mine(svc.Orders, logg))
			r.Get("/{id}", ordercontrollers.Detail(svc.Orders, logg))
			r.Get("/{id}/history", ordercontrollers.History(svc.Orders, logg))
			r.With(can(pkgauth.PermissionOrderManage)).Get("/", ordercontrollers.List(svc.Orders, logg))
			r.With(can(pkgauth.PermissionOrderManage)).Patch("/{id}/status", ordercontrollers.UpdateStatus(svc.Orders, logg))
			r.With(can(pkgauth.PermissionOrderManage)).Delete("/{id}", ordercontrollers.Delete(svc.Orders, logg))
		})
	})

	r.Route("/payment", func(r chi.Router) {
		r.Get("/gateways", paymentcontrollers.Gateways(svc.Payments, logg))
		r.With(authOptional, idem.Optional).Post("/initiate", paymentcontrollers.Initiate(svc.Payments, logg))
		r.Post("/verify/{transaction_id}", paymentcontrollers.Verify(svc.Payments, logg))
		r.Get("/callback/{gateway}", paymentcontrollers.Callback(svc.Payments, cfg.Storefront.BaseURL, logg))
		r.Post("/callback/{gateway}", paymentcontrollers.Callback(svc.Payments, cfg.Storefront.BaseURL, logg))
		r.Post("/webhook/{gateway}", paymentcontrollers.Webhook(svc.Payments, logg))

		r.Group(func(r chi.Router) {
			r.Use(authRequired)
			r.With(can(pkgauth.PermissionPaymentRefund), idem.Required).Post("/refund", paymentcontrollers.Refund(svc.Payments, logg))
			r.With(can(pkgauth.PermissionOrderManage, pkgauth.PermissionPaymentRefund)).Get("/order/{order_id}", paymentcontrollers.ForOrder(svc.Payments, logg))
			r.With(can(pkgauth.PermissionOrderManage, pkgauth.PermissionPaymentRefund)).Get("/{transaction_id}", paymentcontrollers.Detail(svc.Payments, logg))
		})
	})

	r.Route("/returns", func(r chi.Router) {
		r.Use(authRequired)
		r.With(idem.Optional).Post("/request", returncontrollers.Request(svc.Returns, logg))
		r.Get("/my", returncontrollers.Mine(svc.Returns, logg))
		r.Get("/{id}", returncontrollers.Detail(svc.Returns, logg))

		r.Group(func(r chi.Router) {
			r.Use(can(pkgauth.PermissionReturnReview))
			r.Get("/", returncontrollers.List(svc.Returns, logg))
			r.Put("/approve/{id}", returncontrollers.Approve(svc.Returns, logg))
			r.Put("/reject/{id}", returncontrollers.Reject(svc.Returns, logg))
		})
	})

	r.Route("/wallet", func(r chi.Router) {
		r.Use(authRequired)
		r.Get("/", walletcontrollers.Summary(svc.Wallet, logg))
		r.Get("/transactions", walletcontrollers.Transactions(svc.Wallet, logg))
		r.With(idem.Required).Post("/transfer-to-bank", walletcontrollers.TransferToBank(svc.Wallet, logg))
	})

	r.Route("/withdraw", func(r chi.Router) {
		r.Use(authRequired)
		r.Get("/balance/{shop_id}", withdrawcontrollers.Balance(svc.Settlement, logg))
		r.Get("/shop/{shop_id}", withdrawcontrollers.ShopWithdrawals(svc.Settlement, logg))
		r.Get("/earnings/{shop_id}", withdrawcontrollers.ShopEarnings(svc.Settlement, logg))
		r.With(idem.Required).Post("/request", withdrawcontrollers.Request(svc.Settlement, logg))
		r.With(can(pkgauth.PermissionWithdrawReview)).Put("/approve/{id}", withdrawcontrollers.Approve(svc.Settlement, logg))
		r.With(can(pkgauth.PermissionWithdrawReview)).Put("/reject/{id}", withdrawcontrollers.Reject(svc.Settlement, logg))
		r.With(can(pkgauth.PermissionWithdrawProcess)).Put("/process/{id}", withdrawcontrollers.Process(svc.Settlement, logg))
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(authRequired)
		r.Get("/", notificationcontrollers.List(svc.Notifications, logg))
		r.With(idem.Optional).Post("/read-all", notificationcontrollers.MarkAllRead(svc.Notifications, logg))
		r.With(idem.Optional).Post("/{id}/read", notificationcontrollers.MarkRead(svc.Notifications, logg))
		r.With(can(pkgauth.PermissionNotificationSend), idem.Optional).Post("/send", notificationcontrollers.Send(svc.Notifications, logg))
	})

	return r
}
