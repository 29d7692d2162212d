package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quantory/tokenmarket/internal/api/handler"
	"github.com/quantory/tokenmarket/internal/api/middleware"
	"github.com/quantory/tokenmarket/internal/config"
	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/idempotency"
	"github.com/quantory/tokenmarket/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services bundles everything the router exposes over HTTP.
type Services struct {
	Wallets   *service.WalletService
	Orders    *service.OrderService
	Pricing   *service.PricingService
	Fees      *service.FeeService
	Referrals *service.ReferralService
	Engine    *service.MatchingEngine
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	redis     redis.Cmdable
	idemStore *idempotency.Store
	services  Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redis redis.Cmdable, idemStore *idempotency.Store, services Services) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redis,
		idemStore: idemStore,
		services:  services,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	walletHandler := handler.NewWalletHandler(api.services.Wallets, api.services.Pricing)
	orderHandler := handler.NewOrderHandler(api.services.Orders)
	marketHandler := handler.NewMarketHandler(api.services.Pricing, api.services.Engine)
	feeHandler := handler.NewFeeHandler(api.services.Fees)
	referralHandler := handler.NewReferralHandler(api.services.Referrals)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
		r.Get("/v1/price", marketHandler.Price)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/wallet", walletHandler.Get)
		r.Get("/v1/wallet/transactions", walletHandler.Transactions)
		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/transfers", walletHandler.Transfer)
		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/withdrawals", walletHandler.Withdraw)

		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/orders", orderHandler.Create)
		r.Get("/v1/orders", orderHandler.List)
		r.Get("/v1/orders/{id}", orderHandler.Get)
		r.Post("/v1/orders/{id}/cancel", orderHandler.Cancel)

		r.Get("/v1/referrals/analytics", referralHandler.Analytics)
		r.Get("/v1/referrals/earnings", referralHandler.Earnings)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.Post("/v1/admin/deposits", walletHandler.Deposit)
			r.Get("/v1/admin/fees", feeHandler.List)
			r.Put("/v1/admin/fees", feeHandler.Set)
			r.Post("/v1/admin/matching/run", marketHandler.RunMatching)
			r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
				Post("/v1/admin/referrals/payouts", referralHandler.RecordPayout)
		})
	})

	return r
}
