package worker

import (
	"context"
	"time"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/logging"
)

// reallocator is the slice of the engine the sweeper drives.
type reallocator interface {
	PerformReallocationCheck(ctx context.Context) models.ReallocationSummary
}

// Sweeper triggers the reallocation engine on a fixed interval. The engine
// itself is single-flight, so an overlapping manual trigger simply
// serializes behind the ticker sweep.
type Sweeper struct {
	engine   reallocator
	logger   logging.Logger
	interval time.Duration
}

// NewSweeper creates a sweep worker.
func NewSweeper(engine reallocator, logger logging.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		engine:   engine,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *Sweeper) Start(ctx context.Context) {
	w.logger.WithField("interval", w.interval).Info("Starting reallocation sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping reallocation sweep worker")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	summary := w.engine.PerformReallocationCheck(ctx)
	if summary.AllocationsCompleted > 0 || summary.PendingAllocationsTriggered > 0 {
		w.logger.WithFields(logging.Fields{
			"completed": summary.AllocationsCompleted,
			"promoted":  summary.PendingAllocationsTriggered,
		}).Info("Sweep released input sources")
	}
}
