package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grayledger/pulse/internal/alert"
	"github.com/grayledger/pulse/internal/metric"
	"github.com/grayledger/pulse/internal/model"
	"github.com/grayledger/pulse/internal/notify"
	"github.com/grayledger/pulse/internal/rollup"
)

func newTestWorker(t *testing.T, clock time.Time) (*Worker, *metric.MemoryStore, *rollup.MemoryStore) {
	t.Helper()

	samples := metric.NewMemoryStore(time.UTC)
	tracker := metric.NewTracker(samples, testLogger())
	rollupStore := rollup.NewMemoryStore()
	engine := rollup.NewEngine(samples, rollupStore, time.UTC, testLogger())
	engine.SetClock(func() time.Time { return clock })

	alerts := alert.NewEngine(
		alert.NewMemoryStore(),
		notify.NewMemorySink(),
		alert.DefaultRules(0.05, 0.80, 10),
		time.Hour,
		testLogger(),
	)
	collector := NewCollector(tracker, alerts, testLogger())

	// Long collect/cleanup intervals keep those tickers quiet.
	w := NewWorker(collector, engine, tracker, time.Hour, 30, 7, testLogger())
	return w, samples, rollupStore
}

func (w *Worker) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorker_StartTwiceFails(t *testing.T) {
	t.Parallel()

	w, _, _ := newTestWorker(t, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() { errs <- w.Start(ctx) }()
	waitFor(t, "worker start", w.running)

	if err := w.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
	defer cancelShutdown()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Errorf("Start returned %v, want context.Canceled", err)
	}
}

func TestWorker_ShutdownBeforeStartIsNoop(t *testing.T) {
	t.Parallel()

	w, _, _ := newTestWorker(t, time.Now())
	if err := w.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown before Start: %v", err)
	}
}

func TestWorker_RollupTickClosesPreviousPeriod(t *testing.T) {
	t.Parallel()

	// The engine clock sits mid-hour; the tick must aggregate both the
	// previous hour (whose tail no earlier pass could have seen) and
	// the current one.
	clock := time.Date(2026, 3, 4, 11, 30, 0, 0, time.UTC)
	w, samples, rollupStore := newTestWorker(t, clock)
	w.rollupInterval = 10 * time.Millisecond

	record := func(value float64, at time.Time) {
		err := samples.Record(context.Background(), &model.MetricSample{
			Name:       "entries.created",
			Kind:       model.KindCounter,
			Value:      value,
			Tags:       model.Tags{},
			RecordedAt: at,
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	record(10, clock.Add(-45*time.Minute)) // 10:45, previous hour
	record(20, clock.Add(-20*time.Minute)) // 11:10, current hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	previousHour := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	currentHour := previousHour.Add(time.Hour)
	waitFor(t, "both hourly rollups", func() bool {
		got, err := rollupStore.Between(context.Background(), "entries.created", model.IntervalHourly, previousHour, currentHour)
		return err == nil && len(got) == 2
	})

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
	defer cancelShutdown()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	got, err := rollupStore.Between(context.Background(), "entries.created", model.IntervalHourly, previousHour, currentHour)
	if err != nil {
		t.Fatalf("Between: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rollups = %d, want 2", len(got))
	}
	if !got[0].AggregatedAt.Equal(previousHour) || got[0].Statistics["sum"] != 10 {
		t.Errorf("previous hour rollup = %v sum %g, want %v sum 10", got[0].AggregatedAt, got[0].Statistics["sum"], previousHour)
	}
	if !got[1].AggregatedAt.Equal(currentHour) || got[1].Statistics["sum"] != 20 {
		t.Errorf("current hour rollup = %v sum %g, want %v sum 20", got[1].AggregatedAt, got[1].Statistics["sum"], currentHour)
	}
}
