package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/grayledger/pulse/internal/metric"
	"github.com/grayledger/pulse/internal/model"
	"github.com/grayledger/pulse/internal/rollup"
)

const (
	// DefaultCollectInterval is how often the threshold sweep runs.
	DefaultCollectInterval = 5 * time.Minute

	// defaultRollupInterval is how often the rollup pass runs. Each pass
	// closes out the previous hourly, daily, and weekly periods and
	// refreshes the current ones; upserts make the repetition idempotent.
	defaultRollupInterval = time.Hour

	// defaultCleanupInterval is how often retention sweeps run.
	defaultCleanupInterval = 24 * time.Hour
)

// Worker drives the periodic jobs: metric collection and threshold
// checks, rollup aggregation, and retention cleanup.
type Worker struct {
	collector       *Collector
	rollups         *rollup.Engine
	tracker         *metric.Tracker
	logger          *slog.Logger
	collectInterval time.Duration
	rollupInterval  time.Duration
	cleanupInterval time.Duration
	metricRetention int
	rollupRetention int

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewWorker creates a Worker. A non-positive collectInterval falls back
// to the default.
func NewWorker(
	collector *Collector,
	rollups *rollup.Engine,
	tracker *metric.Tracker,
	collectInterval time.Duration,
	metricRetentionDays, rollupRetentionDays int,
	logger *slog.Logger,
) *Worker {
	if collectInterval <= 0 {
		collectInterval = DefaultCollectInterval
	}
	return &Worker{
		collector:       collector,
		rollups:         rollups,
		tracker:         tracker,
		logger:          logger.With("component", "scheduler.worker"),
		collectInterval: collectInterval,
		rollupInterval:  defaultRollupInterval,
		cleanupInterval: defaultCleanupInterval,
		metricRetention: metricRetentionDays,
		rollupRetention: rollupRetentionDays,
	}
}

// Start runs the job loop until the context is canceled or Shutdown is
// called. It blocks; run it in a goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	collect := time.NewTicker(w.collectInterval)
	defer collect.Stop()
	aggregate := time.NewTicker(w.rollupInterval)
	defer aggregate.Stop()
	cleanup := time.NewTicker(w.cleanupInterval)
	defer cleanup.Stop()

	w.logger.Info("scheduler started",
		slog.Duration("collect_interval", w.collectInterval),
		slog.Int("metric_retention_days", w.metricRetention),
		slog.Int("rollup_retention_days", w.rollupRetention),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("scheduler stopping")
			return ctx.Err()
		case <-collect.C:
			w.collector.Run(ctx)
		case <-aggregate.C:
			w.runRollups(ctx)
		case <-cleanup.C:
			w.runCleanup(ctx)
		}
	}
}

// Shutdown gracefully stops the worker. It implements
// server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			w.logger.Warn("scheduler shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

func (w *Worker) runRollups(ctx context.Context) {
	for _, interval := range []model.RollupInterval{
		model.IntervalHourly,
		model.IntervalDaily,
		model.IntervalWeekly,
	} {
		// Close out the previous period first: its final samples landed
		// after the last pass ran. Then refresh the current period.
		if !w.runRollup(ctx, interval, w.rollups.RunPreviousRollup) {
			return
		}
		if !w.runRollup(ctx, interval, w.rollups.RunRollup) {
			return
		}
	}
}

func (w *Worker) runRollup(ctx context.Context, interval model.RollupInterval, run func(context.Context, model.RollupInterval) (int, error)) bool {
	if _, err := run(ctx, interval); err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		w.logger.Error("rollup pass failed",
			slog.String("interval", string(interval)),
			slog.String("error", err.Error()),
		)
	}
	return true
}

func (w *Worker) runCleanup(ctx context.Context) {
	w.tracker.CleanupOldMetrics(ctx, w.metricRetention)
	if _, err := w.rollups.Cleanup(ctx, w.rollupRetention); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("rollup cleanup failed", slog.String("error", err.Error()))
	}
}
