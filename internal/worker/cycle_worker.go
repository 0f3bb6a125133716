package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/adchange-monitor/internal/pipeline"
	"github.com/ignite/adchange-monitor/internal/pkg/distlock"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
)

// =============================================================================
// CYCLE WORKER: scheduled ingestion + measurement
// =============================================================================
// Runs the full cycle (fetch, classify, record, measure, maintenance) on a
// fixed interval. Manual runs through the HTTP surface share the same run
// lock, so a tick that collides with one is skipped, not queued.

// DefaultCycleInterval is how often the cycle runs when no interval is given.
const DefaultCycleInterval = 1 * time.Hour

// CycleRunner is the part of the pipeline the worker drives.
type CycleRunner interface {
	RunFullCycle(ctx context.Context) (*pipeline.CycleResult, error)
}

// CycleWorker periodically runs the full pipeline cycle.
type CycleWorker struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool
}

// NewCycleWorker creates a worker. A non-positive interval uses
// DefaultCycleInterval.
func NewCycleWorker(runner CycleRunner, interval time.Duration, runOnStart bool) *CycleWorker {
	if interval <= 0 {
		interval = DefaultCycleInterval
	}
	return &CycleWorker{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
	}
}

// Start begins the cycle loop. It blocks until ctx is cancelled.
func (w *CycleWorker) Start(ctx context.Context) {
	logger.Info("cycle worker starting", "interval", w.interval.String(), "run_on_start", w.runOnStart)

	if w.runOnStart {
		w.tick(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cycle worker stopping")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *CycleWorker) tick(ctx context.Context) {
	start := time.Now()
	res, err := w.runner.RunFullCycle(ctx)
	switch {
	case errors.Is(err, distlock.ErrLocked):
		logger.Info("cycle skipped, another run holds the lock")
		return
	case ctx.Err() != nil:
		return
	case err != nil:
		logger.Error("cycle failed", "error", err, "duration", time.Since(start).Round(time.Millisecond).String())
		return
	}

	fields := []interface{}{"run_id", res.RunID, "duration", time.Since(start).Round(time.Millisecond).String()}
	if res.Ingestion != nil {
		fields = append(fields, "ingested", res.Ingestion.Ingested)
	}
	if res.Measurement != nil {
		fields = append(fields, "finalized", res.Measurement.Finalized)
	}
	logger.Info("cycle completed", fields...)
}
