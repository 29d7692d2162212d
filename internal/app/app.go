package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quantory/tokenmarket/internal/api"
	"github.com/quantory/tokenmarket/internal/api/middleware"
	"github.com/quantory/tokenmarket/internal/config"
	"github.com/quantory/tokenmarket/internal/db"
	"github.com/quantory/tokenmarket/internal/idempotency"
	"github.com/quantory/tokenmarket/internal/notify"
	"github.com/quantory/tokenmarket/internal/observability"
	"github.com/quantory/tokenmarket/internal/repository"
	"github.com/quantory/tokenmarket/internal/service"
	"github.com/quantory/tokenmarket/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const tickLockKey = "tokenmarket:matching:tick-lock"

// Run bootstraps the HTTP server and background workers, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	node, err := snowflake.NewNode(1)
	if err != nil {
		return fmt.Errorf("init id node: %w", err)
	}

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(redisClient, store, cfg.IdempotencyTTL)
	sink := notify.NewLogSink()

	pricing := service.NewPricingService(store)
	if err := pricing.EnsurePriceState(ctx, cfg.TotalTokenSupply, cfg.InitialInvestment); err != nil {
		return fmt.Errorf("seed price state: %w", err)
	}

	fees := service.NewFeeService(store)
	wallets := service.NewWalletService(store, fees, cfg.FeeReceiverID, cfg.WalletLockTimeout)
	if _, err := wallets.EnsureWallet(ctx, cfg.FeeReceiverID); err != nil {
		return fmt.Errorf("seed fee receiver wallet: %w", err)
	}

	settler := service.NewSettler(fees, cfg.FeeReceiverID)
	orders := service.NewOrderService(store, settler, wallets, sink, node, cfg.WalletLockTimeout)
	referrals := service.NewReferralService(store, cfg.WalletLockTimeout)

	engineOpts := []service.MatchingOption{
		service.WithBatchSize(cfg.MatchingBatchSize),
		service.WithCancelOnInsufficientFunds(cfg.CancelOnInsufficientFunds),
	}
	if cfg.DistributedTickLock {
		engineOpts = append(engineOpts,
			service.WithTickLocker(service.NewRedisTickLocker(redisClient, tickLockKey, cfg.TickLockTTL)))
	}
	engine := service.NewMatchingEngine(store, settler, sink, cfg.WalletLockTimeout, engineOpts...)

	matchingWorker := worker.NewMatchingWorker(engine).WithInterval(cfg.MatchingInterval)
	stopMatching := matchingWorker.Run(ctx)
	logger.Info("matching worker started", zap.Duration("interval", cfg.MatchingInterval), zap.Int32("batch", cfg.MatchingBatchSize))

	reconWorker := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval)
	stopRecon := reconWorker.Run(ctx)

	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, api.Services{
		Wallets:   wallets,
		Orders:    orders,
		Pricing:   pricing,
		Fees:      fees,
		Referrals: referrals,
		Engine:    engine,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopMatching()
	stopRecon()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
