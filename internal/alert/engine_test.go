package alert

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/grayledger/pulse/internal/model"
	"github.com/grayledger/pulse/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, at time.Time) (*Engine, *MemoryStore, *notify.MemorySink) {
	t.Helper()
	store := NewMemoryStore()
	sink := notify.NewMemorySink()
	engine := NewEngine(store, sink, DefaultRules(0.05, 0.80, 10), time.Hour, testLogger())
	engine.SetClock(func() time.Time { return at })
	return engine, store, sink
}

func TestEngine_Check_Triggers(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, store, sink := newTestEngine(t, now)
	ctx := context.Background()

	result, err := engine.Check(ctx, model.AlertErrorRate, 0.08)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Status != OutcomeTriggered {
		t.Fatalf("Status = %s, want triggered", result.Status)
	}
	if result.Alert == nil {
		t.Fatal("triggered result should carry the created alert")
	}
	if !strings.Contains(result.Alert.Description, "8.00%") {
		t.Errorf("Description = %q, want rate rendered as percentage", result.Alert.Description)
	}

	active, _ := store.ActiveFor(ctx, model.AlertErrorRate, model.AlertErrorRate)
	if len(active) != 1 {
		t.Errorf("active alerts = %d, want 1", len(active))
	}
	if got := len(sink.Dispatches()); got != 1 {
		t.Errorf("dispatches = %d, want 1", got)
	}
}

func TestEngine_Check_AtThresholdDoesNotTrigger(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, _, sink := newTestEngine(t, now)

	result, err := engine.Check(context.Background(), model.AlertErrorRate, 0.05)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Status != OutcomeResolved {
		t.Errorf("Status at exact threshold = %s, want resolved (strict comparison)", result.Status)
	}
	if len(sink.Dispatches()) != 0 {
		t.Error("no dispatch expected at exact threshold")
	}
}

func TestEngine_Check_CooldownSuppressesRepeat(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, store, sink := newTestEngine(t, now)
	ctx := context.Background()

	if _, err := engine.Check(ctx, model.AlertErrorRate, 0.08); err != nil {
		t.Fatalf("first Check: %v", err)
	}

	// 30 minutes later the breach persists; still inside the cooldown.
	engine.SetClock(func() time.Time { return now.Add(30 * time.Minute) })
	result, err := engine.Check(ctx, model.AlertErrorRate, 0.09)
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if result.Status != OutcomeRateLimited {
		t.Errorf("Status = %s, want rate_limited", result.Status)
	}
	if len(sink.Dispatches()) != 1 {
		t.Errorf("dispatches = %d, want exactly 1 inside cooldown", len(sink.Dispatches()))
	}

	recent, _ := store.Recent(ctx, 10)
	if len(recent) != 1 {
		t.Errorf("alerts = %d, want 1 (no duplicate record)", len(recent))
	}
}

func TestEngine_Check_SecondAlertAfterCooldown(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, store, sink := newTestEngine(t, now)
	ctx := context.Background()

	if _, err := engine.Check(ctx, model.AlertErrorRate, 0.08); err != nil {
		t.Fatalf("first Check: %v", err)
	}

	engine.SetClock(func() time.Time { return now.Add(time.Hour + time.Minute) })
	result, err := engine.Check(ctx, model.AlertErrorRate, 0.09)
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if result.Status != OutcomeTriggered {
		t.Errorf("Status after cooldown = %s, want triggered", result.Status)
	}
	if len(sink.Dispatches()) != 2 {
		t.Errorf("dispatches = %d, want 2", len(sink.Dispatches()))
	}
	recent, _ := store.Recent(ctx, 10)
	if len(recent) != 2 {
		t.Errorf("alerts = %d, want 2", len(recent))
	}
}

func TestEngine_Check_ResolutionNotCooldownGated(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, store, _ := newTestEngine(t, now)
	ctx := context.Background()

	if _, err := engine.Check(ctx, model.AlertErrorRate, 0.08); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	// Recovery 10 minutes later, well inside the cooldown window.
	engine.SetClock(func() time.Time { return now.Add(10 * time.Minute) })
	result, err := engine.Check(ctx, model.AlertErrorRate, 0.01)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Status != OutcomeResolved {
		t.Errorf("Status = %s, want resolved", result.Status)
	}

	active, _ := store.ActiveFor(ctx, model.AlertErrorRate, model.AlertErrorRate)
	if len(active) != 0 {
		t.Errorf("active alerts after recovery = %d, want 0", len(active))
	}

	recent, _ := store.Recent(ctx, 10)
	if len(recent) != 1 {
		t.Fatalf("alerts = %d, want 1 retained", len(recent))
	}
	a := recent[0]
	if a.ResolvedAt == nil {
		t.Fatal("alert should be resolved")
	}
	if a.ResolvedAt.Before(a.TriggeredAt) {
		t.Error("resolved_at must not precede triggered_at")
	}
}

func TestEngine_Check_CacheHitRateBelow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, _, _ := newTestEngine(t, now)
	ctx := context.Background()

	result, err := engine.Check(ctx, model.AlertCacheHitRate, 0.72)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Status != OutcomeTriggered {
		t.Errorf("Status for low hit rate = %s, want triggered", result.Status)
	}

	result, err = engine.Check(ctx, model.AlertCacheHitRate, 0.80)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Status != OutcomeResolved {
		t.Errorf("Status at exact floor = %s, want resolved", result.Status)
	}
}

func TestEngine_Check_NotifierFailureKeepsAlert(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	sink := notify.NewMemorySink()
	sink.Err = io.ErrClosedPipe
	engine := NewEngine(store, sink, DefaultRules(0.05, 0.80, 10), time.Hour, testLogger())
	engine.SetClock(func() time.Time { return now })

	result, err := engine.Check(context.Background(), model.AlertJobFailures, 25)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Status != OutcomeTriggered {
		t.Errorf("Status = %s, want triggered despite sink failure", result.Status)
	}

	active, _ := store.ActiveFor(context.Background(), model.AlertJobFailures, model.AlertJobFailures)
	if len(active) != 1 {
		t.Error("alert record must stand when the sink fails")
	}
}

func TestEngine_CheckCriticalThresholds_SkipsAbsent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, store, _ := newTestEngine(t, now)

	// Only error_rate is derivable this sweep.
	results := engine.CheckCriticalThresholds(context.Background(), map[string]float64{
		model.AlertErrorRate: 0.10,
	})

	if len(results.Triggered) != 1 {
		t.Fatalf("triggered = %d, want 1", len(results.Triggered))
	}
	if len(results.Resolved) != 0 || len(results.RateLimited) != 0 {
		t.Error("absent metrics must be skipped, not resolved")
	}

	recent, _ := store.Recent(context.Background(), 10)
	if len(recent) != 1 {
		t.Errorf("alerts = %d, want 1", len(recent))
	}
}

func TestEngine_CooldownIsPerMetricPair(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, _, sink := newTestEngine(t, now)
	ctx := context.Background()

	if _, err := engine.Check(ctx, model.AlertErrorRate, 0.08); err != nil {
		t.Fatalf("Check: %v", err)
	}
	// A different metric's alert is not throttled by error_rate's cooldown.
	result, err := engine.Check(ctx, model.AlertJobFailures, 30)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Status != OutcomeTriggered {
		t.Errorf("Status = %s, want triggered for independent metric", result.Status)
	}
	if len(sink.Dispatches()) != 2 {
		t.Errorf("dispatches = %d, want 2", len(sink.Dispatches()))
	}
}
