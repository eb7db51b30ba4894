package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/grayledger/pulse/internal/alert"
	"github.com/grayledger/pulse/internal/metric"
	"github.com/grayledger/pulse/internal/model"
	"github.com/grayledger/pulse/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCollector(t *testing.T, at time.Time) (*Collector, *metric.MemoryStore, *alert.MemoryStore, *notify.MemorySink) {
	t.Helper()

	samples := metric.NewMemoryStore(time.UTC)
	tracker := metric.NewTracker(samples, testLogger())
	tracker.SetClock(func() time.Time { return at })

	alertStore := alert.NewMemoryStore()
	sink := notify.NewMemorySink()
	engine := alert.NewEngine(alertStore, sink, alert.DefaultRules(0.05, 0.80, 10), time.Hour, testLogger())
	engine.SetClock(func() time.Time { return at })

	collector := NewCollector(tracker, engine, testLogger())
	collector.SetClock(func() time.Time { return at })
	return collector, samples, alertStore, sink
}

func addSample(t *testing.T, store *metric.MemoryStore, name string, kind model.MetricKind, value float64, at time.Time) {
	t.Helper()
	err := store.Record(context.Background(), &model.MetricSample{
		Name:       name,
		Kind:       kind,
		Value:      value,
		Tags:       model.Tags{},
		RecordedAt: at,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestCollector_Snapshot_DerivesErrorRate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	collector, samples, _, _ := newTestCollector(t, now)

	addSample(t, samples, "requests.total", model.KindCounter, 200, now.Add(-30*time.Minute))
	addSample(t, samples, "errors.total", model.KindCounter, 12, now.Add(-20*time.Minute))

	metrics := collector.Snapshot(context.Background())
	if got := metrics[MetricErrorRate]; got != 0.06 {
		t.Errorf("error_rate = %g, want 0.06", got)
	}
}

func TestCollector_Snapshot_GaugeWinsOverDerivation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	collector, samples, _, _ := newTestCollector(t, now)

	addSample(t, samples, "requests.total", model.KindCounter, 100, now.Add(-30*time.Minute))
	addSample(t, samples, "errors.total", model.KindCounter, 50, now.Add(-20*time.Minute))
	addSample(t, samples, "error_rate", model.KindGauge, 0.02, now.Add(-time.Minute))

	metrics := collector.Snapshot(context.Background())
	if got := metrics[MetricErrorRate]; got != 0.02 {
		t.Errorf("error_rate = %g, want tracked gauge 0.02", got)
	}
}

func TestCollector_Snapshot_CacheHitRateFromCounters(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	collector, samples, _, _ := newTestCollector(t, now)

	addSample(t, samples, "cache.hits", model.KindCounter, 90, now.Add(-10*time.Minute))
	addSample(t, samples, "cache.misses", model.KindCounter, 10, now.Add(-10*time.Minute))

	metrics := collector.Snapshot(context.Background())
	if got := metrics[MetricCacheHitRate]; got != 0.9 {
		t.Errorf("cache_hit_rate = %g, want 0.9", got)
	}
}

func TestCollector_Snapshot_AbsentWhenUnderivable(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	collector, _, _, _ := newTestCollector(t, now)

	metrics := collector.Snapshot(context.Background())
	if len(metrics) != 0 {
		t.Errorf("snapshot of empty store = %v, want empty (no zero values)", metrics)
	}
}

func TestCollector_Run_TriggersAlerts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	collector, samples, alertStore, sink := newTestCollector(t, now)

	addSample(t, samples, "error_rate", model.KindGauge, 0.12, now.Add(-time.Minute))
	addSample(t, samples, "job_failures", model.KindGauge, 25, now.Add(-time.Minute))

	results := collector.Run(context.Background())
	if len(results.Triggered) != 2 {
		t.Fatalf("triggered = %d, want 2", len(results.Triggered))
	}
	if len(sink.Dispatches()) != 2 {
		t.Errorf("dispatches = %d, want 2", len(sink.Dispatches()))
	}

	recent, _ := alertStore.Recent(context.Background(), 10)
	if len(recent) != 2 {
		t.Errorf("alert records = %d, want 2", len(recent))
	}
}

func TestCollector_Run_AbsentMetricsSkipped(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	collector, samples, alertStore, _ := newTestCollector(t, now)

	// Trigger a cache_hit_rate alert first.
	addSample(t, samples, "cache_hit_rate", model.KindGauge, 0.5, now.Add(-2*time.Minute))
	collector.Run(context.Background())

	active, _ := alertStore.ActiveFor(context.Background(), model.AlertCacheHitRate, model.AlertCacheHitRate)
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}

	// A later sweep where only error_rate is derivable must not resolve
	// the cache alert; absence is skipped, not treated as recovery.
	samples2 := metric.NewMemoryStore(time.UTC)
	tracker2 := metric.NewTracker(samples2, testLogger())
	engine := collector.alerts
	collector2 := NewCollector(tracker2, engine, testLogger())
	collector2.SetClock(func() time.Time { return now.Add(5 * time.Minute) })

	collector2.Run(context.Background())

	active, _ = alertStore.ActiveFor(context.Background(), model.AlertCacheHitRate, model.AlertCacheHitRate)
	if len(active) != 1 {
		t.Errorf("active after absent sweep = %d, want 1 (still active)", len(active))
	}
}
