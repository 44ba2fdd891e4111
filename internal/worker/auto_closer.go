package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/service"
)

// Sweeper closes resolved tickets whose grace window has passed.
type Sweeper interface {
	CloseExpiredResolved(ctx context.Context, window time.Duration) (service.SweepResult, error)
}

// AutoCloser runs the sweep on a fixed interval.
type AutoCloser struct {
	sweeper  Sweeper
	window   time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewAutoCloser constructs the worker.
func NewAutoCloser(sweeper Sweeper, window, interval time.Duration, logger *zap.Logger) *AutoCloser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoCloser{sweeper: sweeper, window: window, interval: interval, logger: logger}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (w *AutoCloser) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("auto-close worker started",
		zap.Duration("window", w.window), zap.Duration("interval", w.interval))
	for {
		w.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("auto-close worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single sweep and logs the outcome.
func (w *AutoCloser) SweepOnce(ctx context.Context) service.SweepResult {
	result, err := w.sweeper.CloseExpiredResolved(ctx, w.window)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("auto-close sweep failed", zap.Error(err))
		}
		return result
	}
	if result.Scanned > 0 {
		w.logger.Info("auto-close sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("closed", result.Closed),
			zap.Int("skipped", result.Skipped))
	}
	return result
}
