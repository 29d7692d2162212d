package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/observability"
	"github.com/quantory/tokenmarket/internal/service"
	"go.uber.org/zap"
)

// MatchingWorker drives the matching engine on a fixed cadence. The engine
// itself enforces single-flight, so a manual admin trigger overlapping a
// scheduled tick simply makes one of the two a no-op.
type MatchingWorker struct {
	engine   *service.MatchingEngine
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMatchingWorker constructs a worker with a default five second cadence.
func NewMatchingWorker(engine *service.MatchingEngine) *MatchingWorker {
	return &MatchingWorker{
		engine:   engine,
		interval: 5 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the tick cadence.
func (w *MatchingWorker) WithInterval(interval time.Duration) *MatchingWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and ticks at the configured cadence.
func (w *MatchingWorker) Start(ctx context.Context) {
	zap.L().Info("matching worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("matching worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("matching worker stop signal received")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *MatchingWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *MatchingWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce runs a single tick immediately. Useful for testing or manual
// triggering.
func (w *MatchingWorker) ProcessOnce(ctx context.Context) (service.TickReport, error) {
	return w.engine.RunOnce(ctx)
}

func (w *MatchingWorker) tick(ctx context.Context) {
	report, err := w.engine.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, models.ErrTickInProgress) {
			observability.IncrementWorkerRun("matching", "skipped")
			return
		}
		observability.IncrementWorkerRun("matching", "failed")
		zap.L().Error("matching tick failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("matching", "success")
	if report.ExecutedCount > 0 || report.SkippedOrErroredCount > 0 {
		zap.L().Info("matching tick",
			zap.Int("executed", report.ExecutedCount),
			zap.Int("waiting_on_price", report.SkippedWaitingOnPrice),
			zap.Int("skipped_or_errored", report.SkippedOrErroredCount),
			zap.String("price", report.CurrentPrice.String()),
			zap.Int64("elapsed_ms", report.ExecutionTimeMs))
	}
}
