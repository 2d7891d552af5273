package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/app"
	"github.com/remesaops/remesas-backend/internal/config"
	"github.com/remesaops/remesas-backend/internal/db"
	"github.com/remesaops/remesas-backend/internal/repository"
	"github.com/remesaops/remesas-backend/internal/service"
)

// One-shot maintenance command: recompute every user's USD balance from the
// pinned snapshots and rewrite the stored values.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "remesas-recalc: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := app.NewRedisClient(cfg.RedisURL)
	if err != nil {
		// The recalculation itself only needs the database; stale cache
		// entries expire on their own.
		logger.Warn("redis unavailable, skipping cache invalidation", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	store := repository.NewStore(pool)
	var cache redis.Cmdable
	if redisClient != nil {
		cache = redisClient
	}
	svc := service.NewBalanceService(store, cache)

	corrected, err := svc.RecalculateAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("recalculation complete", zap.Int("corrected", corrected))
	return nil
}
