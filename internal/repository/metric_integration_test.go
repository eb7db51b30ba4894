//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/grayledger/pulse/internal/model"
	"github.com/grayledger/pulse/internal/testutil"
)

func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

func TestIntegrationMetricRepository_RecordAndLatest(t *testing.T) {
	ctx, repo := newTestEnv(t)
	metrics := NewMetricRepository(repo, time.UTC)

	name := testutil.UniqueMetricName("record")
	sample := testutil.NewTestSample(t, name, model.KindCounter, 1, time.Now().UTC())
	sample.Tags = model.Tags{"path": "/v1/entries"}

	if err := metrics.Record(ctx, sample); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	retrieved, found, err := metrics.Latest(ctx, name, nil)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if !found {
		t.Fatal("expected a sample")
	}
	if retrieved.ID != sample.ID {
		t.Errorf("ID mismatch: got %q, want %q", retrieved.ID, sample.ID)
	}
	if retrieved.Kind != model.KindCounter {
		t.Errorf("Kind mismatch: got %q", retrieved.Kind)
	}
	if retrieved.Tags["path"] != "/v1/entries" {
		t.Errorf("Tags mismatch: got %v", retrieved.Tags)
	}
}

func TestIntegrationMetricRepository_TagFiltering(t *testing.T) {
	ctx, repo := newTestEnv(t)
	metrics := NewMetricRepository(repo, time.UTC)

	name := testutil.UniqueMetricName("tags")
	now := time.Now().UTC()
	for _, path := range []string{"/a", "/a", "/b"} {
		s := testutil.NewTestSample(t, name, model.KindCounter, 1, now)
		s.Tags = model.Tags{"path": path}
		if err := metrics.Record(ctx, s); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	start, end := now.Add(-time.Minute), now.Add(time.Minute)
	sum, err := metrics.Sum(ctx, name, start, end, model.Tags{"path": "/a"})
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if sum != 2 {
		t.Errorf("filtered sum = %g, want 2", sum)
	}

	total, err := metrics.Sum(ctx, name, start, end, nil)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if total != 3 {
		t.Errorf("unfiltered sum = %g, want 3", total)
	}
}

func TestIntegrationMetricRepository_Aggregates(t *testing.T) {
	ctx, repo := newTestEnv(t)
	metrics := NewMetricRepository(repo, time.UTC)

	name := testutil.UniqueMetricName("agg")
	now := time.Now().UTC()
	for _, v := range []float64{100, 200, 300, 400} {
		if err := metrics.Record(ctx, testutil.NewTestSample(t, name, model.KindTiming, v, now)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	start, end := now.Add(-time.Minute), now.Add(time.Minute)

	avg, err := metrics.Avg(ctx, name, start, end, nil)
	if err != nil {
		t.Fatalf("Avg failed: %v", err)
	}
	if avg != 250 {
		t.Errorf("avg = %g, want 250", avg)
	}

	min, found, err := metrics.Min(ctx, name, start, end, nil)
	if err != nil || !found {
		t.Fatalf("Min failed: found=%v err=%v", found, err)
	}
	if min != 100 {
		t.Errorf("min = %g, want 100", min)
	}

	// PERCENTILE_CONT interpolates between ranked values.
	p50, found, err := metrics.Percentile(ctx, name, 50, start, end, nil)
	if err != nil || !found {
		t.Fatalf("Percentile failed: found=%v err=%v", found, err)
	}
	if p50 != 250 {
		t.Errorf("p50 = %g, want 250", p50)
	}
}

func TestIntegrationMetricRepository_Percentile_Empty(t *testing.T) {
	ctx, repo := newTestEnv(t)
	metrics := NewMetricRepository(repo, time.UTC)

	now := time.Now().UTC()
	_, found, err := metrics.Percentile(ctx, testutil.UniqueMetricName("none"), 95, now.Add(-time.Hour), now, nil)
	if err != nil {
		t.Fatalf("Percentile failed: %v", err)
	}
	if found {
		t.Error("expected no percentile for empty range")
	}
}

func TestIntegrationMetricRepository_CountByDay(t *testing.T) {
	ctx, repo := newTestEnv(t)
	metrics := NewMetricRepository(repo, time.UTC)

	name := testutil.UniqueMetricName("byday")
	day1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	for _, at := range []time.Time{day1, day1, day2} {
		if err := metrics.Record(ctx, testutil.NewTestSample(t, name, model.KindCounter, 1, at)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	days, err := metrics.CountByDay(ctx, name, day1.Add(-time.Hour), day2.Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("CountByDay failed: %v", err)
	}
	if days["2026-03-02"] != 2 || days["2026-03-03"] != 1 {
		t.Errorf("days = %v", days)
	}
}

func TestIntegrationMetricRepository_DeleteOlderThan(t *testing.T) {
	ctx, repo := newTestEnv(t)
	metrics := NewMetricRepository(repo, time.UTC)

	name := testutil.UniqueMetricName("cleanup")
	now := time.Now().UTC()
	old := testutil.NewTestSample(t, name, model.KindCounter, 1, now.AddDate(0, 0, -40))
	fresh := testutil.NewTestSample(t, name, model.KindCounter, 1, now)
	for _, s := range []*model.MetricSample{old, fresh} {
		if err := metrics.Record(ctx, s); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	deleted, err := metrics.DeleteOlderThan(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	retrieved, found, err := metrics.Latest(ctx, name, nil)
	if err != nil || !found {
		t.Fatalf("Latest failed: found=%v err=%v", found, err)
	}
	if retrieved.ID != fresh.ID {
		t.Errorf("surviving sample = %q, want %q", retrieved.ID, fresh.ID)
	}
}
