package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/observability"
	"github.com/remesaops/remesas-backend/internal/service"
)

// WatchdogWorker runs the pending-operation watchdog on a fixed interval.
type WatchdogWorker struct {
	svc      *service.WatchdogService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatchdogWorker constructs a worker with a default hourly interval.
func NewWatchdogWorker(svc *service.WatchdogService) *WatchdogWorker {
	return &WatchdogWorker{
		svc:      svc,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *WatchdogWorker) WithInterval(interval time.Duration) *WatchdogWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *WatchdogWorker) Start(ctx context.Context) {
	zap.L().Info("pending watchdog starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Sweep once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("pending watchdog context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("pending watchdog stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *WatchdogWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *WatchdogWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *WatchdogWorker) runOnce(ctx context.Context) {
	if _, err := w.svc.Sweep(ctx, time.Now().UTC()); err != nil {
		observability.IncrementWorkerRun("pending_watchdog", "failed")
		zap.L().Error("pending watchdog sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("pending_watchdog", "success")
}
