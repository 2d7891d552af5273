package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/app"
	"github.com/remesaops/remesas-backend/internal/config"
	"github.com/remesaops/remesas-backend/internal/db"
	"github.com/remesaops/remesas-backend/internal/events"
	"github.com/remesaops/remesas-backend/internal/notify"
	"github.com/remesaops/remesas-backend/internal/observability"
	"github.com/remesaops/remesas-backend/internal/repository"
	"github.com/remesaops/remesas-backend/internal/service"
	"github.com/remesaops/remesas-backend/internal/worker"
)

// Standalone pending-watchdog process. With -once it performs a single sweep
// and exits; without it, it loops on the configured interval.
func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintf(os.Stderr, "remesas-watchdog: %v\n", err)
		os.Exit(1)
	}
}

func run(once bool) error {
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
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	store := repository.NewStore(pool)
	bus := events.NewBus()
	fanout := notify.NewFanout(store, notify.NewRenderer(loc), nil)
	bus.Subscribe(fanout.Handle)

	svc := service.NewWatchdogService(store, bus)

	if once {
		res, err := svc.Sweep(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		bus.Drain(30 * time.Second)
		logger.Info("sweep finished",
			zap.Int("notified", res.Total()), zap.Int("errors", res.Errors))
		return nil
	}

	w := worker.NewWatchdogWorker(svc).WithInterval(cfg.WatchdogInterval)
	stop := w.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")
	stop()
	bus.Drain(30 * time.Second)
	return nil
}
