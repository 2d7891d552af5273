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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/api"
	"github.com/remesaops/remesas-backend/internal/api/handler"
	"github.com/remesaops/remesas-backend/internal/api/middleware"
	"github.com/remesaops/remesas-backend/internal/config"
	"github.com/remesaops/remesas-backend/internal/db"
	"github.com/remesaops/remesas-backend/internal/events"
	"github.com/remesaops/remesas-backend/internal/idempotency"
	"github.com/remesaops/remesas-backend/internal/notify"
	"github.com/remesaops/remesas-backend/internal/observability"
	"github.com/remesaops/remesas-backend/internal/repository"
	"github.com/remesaops/remesas-backend/internal/service"
	"github.com/remesaops/remesas-backend/internal/worker"
)

// Run bootstraps the HTTP server and the pending watchdog, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel)
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

	redisClient, err := NewRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	store := repository.NewStore(pool)
	bus := events.NewBus()
	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)

	balanceSvc := service.NewBalanceService(store, redisClient)
	remittanceSvc := service.NewRemittanceService(store, bus, balanceSvc)
	payoutSvc := service.NewPayoutService(store, bus, balanceSvc)
	watchdogSvc := service.NewWatchdogService(store, bus)
	historyReader := service.NewHistoryReader(store)

	fanout := notify.NewFanout(store, notify.NewRenderer(loc), nil)
	bus.Subscribe(fanout.Handle)

	watchdog := worker.NewWatchdogWorker(watchdogSvc).WithInterval(cfg.WatchdogInterval)
	stopWatchdog := watchdog.Run(ctx)

	router := api.Routes(api.Deps{
		Remittances:        handler.NewRemittanceHandler(remittanceSvc, historyReader),
		Payouts:            handler.NewPayoutHandler(payoutSvc, historyReader),
		Balances:           handler.NewBalanceHandler(balanceSvc),
		Currencies:         handler.NewCurrencyHandler(store),
		Notifications:      handler.NewNotificationHandler(store, fanout),
		Health:             handler.NewHealthHandler(pool, redisClient),
		Idempotency:        idemStore,
		Logger:             logger,
		PublicRateLimitRPS: cfg.PublicRateLimitRPS,
		AuthRateLimitRPS:   cfg.AuthRateLimitRPS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
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

	logger.Info("stopping pending watchdog")
	stopWatchdog()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	if !bus.Drain(10 * time.Second) {
		logger.Warn("event bus drain timed out")
	}

	logger.Info("shutdown complete")
	return nil
}

// NewLogger builds the production logger at the configured level.
func NewLogger(level string) (*zap.Logger, error) {
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

// NewRedisClient connects and pings within a short timeout.
func NewRedisClient(url string) (*redis.Client, error) {
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
