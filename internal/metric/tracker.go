package metric

import (
	"context"
	"log/slog"
	"time"

	"github.com/grayledger/pulse/internal/model"
)

// Tracker is the facade business logic uses to emit and query metrics.
// No method ever propagates a store failure to the caller: failures are
// logged and the call degrades to a no-op or a neutral value, so request
// paths are never blocked by observability infrastructure.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker on top of store.
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With("component", "metric.tracker"),
		now:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// TrackCounter records an increment-only metric. Pass 1 for plain counts.
func (t *Tracker) TrackCounter(ctx context.Context, name string, value float64, tags model.Tags) (*model.MetricSample, bool) {
	return t.record(ctx, name, model.KindCounter, value, tags)
}

// TrackGauge records a point-in-time value.
func (t *Tracker) TrackGauge(ctx context.Context, name string, value float64, tags model.Tags) (*model.MetricSample, bool) {
	return t.record(ctx, name, model.KindGauge, value, tags)
}

// TrackTiming records a duration in milliseconds.
func (t *Tracker) TrackTiming(ctx context.Context, name string, durationMS float64, tags model.Tags) (*model.MetricSample, bool) {
	return t.record(ctx, name, model.KindTiming, durationMS, tags)
}

// MeasureTiming runs fn and records its wall-clock duration as a timing
// sample. The duration is recorded even when fn fails, and fn's error is
// always returned to the caller regardless of recording outcome.
func (t *Tracker) MeasureTiming(ctx context.Context, name string, tags model.Tags, fn func() error) error {
	start := t.now()
	err := fn()
	durationMS := float64(t.now().Sub(start).Microseconds()) / 1000
	t.TrackTiming(ctx, name, durationMS, tags)
	return err
}

func (t *Tracker) record(ctx context.Context, name string, kind model.MetricKind, value float64, tags model.Tags) (*model.MetricSample, bool) {
	if tags == nil {
		tags = model.Tags{}
	}
	sample := &model.MetricSample{
		Name:       name,
		Kind:       kind,
		Value:      value,
		Tags:       tags,
		RecordedAt: t.now(),
	}
	if err := sample.Validate(); err != nil {
		t.logError(name, string(kind), err)
		return nil, false
	}
	if err := t.store.Record(ctx, sample); err != nil {
		t.logError(name, string(kind), err)
		return nil, false
	}
	return sample, true
}

// Query passthroughs. Each degrades to a neutral value on store failure.

// Latest returns the most recent sample for name.
func (t *Tracker) Latest(ctx context.Context, name string, tags model.Tags) (*model.MetricSample, bool) {
	sample, ok, err := t.store.Latest(ctx, name, tags)
	if err != nil {
		t.logError(name, "latest", err)
		return nil, false
	}
	return sample, ok
}

// Range returns samples for name recorded in [start, end].
func (t *Tracker) Range(ctx context.Context, name string, start, end time.Time, tags model.Tags) []*model.MetricSample {
	samples, err := t.store.Range(ctx, name, start, end, tags)
	if err != nil {
		t.logError(name, "range", err)
		return nil
	}
	return samples
}

// SumValues sums matching sample values, 0 on failure or empty set.
func (t *Tracker) SumValues(ctx context.Context, name string, start, end time.Time, tags model.Tags) float64 {
	sum, err := t.store.Sum(ctx, name, start, end, tags)
	if err != nil {
		t.logError(name, "sum", err)
		return 0
	}
	return sum
}

// AvgValues averages matching sample values, 0 on failure or empty set.
func (t *Tracker) AvgValues(ctx context.Context, name string, start, end time.Time, tags model.Tags) float64 {
	avg, err := t.store.Avg(ctx, name, start, end, tags)
	if err != nil {
		t.logError(name, "avg", err)
		return 0
	}
	return avg
}

// MinValues returns the smallest matching value, absent on failure or empty set.
func (t *Tracker) MinValues(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, bool) {
	min, ok, err := t.store.Min(ctx, name, start, end, tags)
	if err != nil {
		t.logError(name, "min", err)
		return 0, false
	}
	return min, ok
}

// MaxValues returns the largest matching value, absent on failure or empty set.
func (t *Tracker) MaxValues(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, bool) {
	max, ok, err := t.store.Max(ctx, name, start, end, tags)
	if err != nil {
		t.logError(name, "max", err)
		return 0, false
	}
	return max, ok
}

// Percentile computes the continuous percentile p of matching values.
func (t *Tracker) Percentile(ctx context.Context, name string, p float64, start, end time.Time, tags model.Tags) (float64, bool) {
	v, ok, err := t.store.Percentile(ctx, name, p, start, end, tags)
	if err != nil {
		t.logError(name, "percentile", err)
		return 0, false
	}
	return v, ok
}

// CountByDay counts matching samples per calendar day.
func (t *Tracker) CountByDay(ctx context.Context, name string, start, end time.Time, tags model.Tags) map[string]int64 {
	counts, err := t.store.CountByDay(ctx, name, start, end, tags)
	if err != nil {
		t.logError(name, "count_by_day", err)
		return map[string]int64{}
	}
	return counts
}

// SumByDay sums matching values per calendar day.
func (t *Tracker) SumByDay(ctx context.Context, name string, start, end time.Time, tags model.Tags) map[string]float64 {
	sums, err := t.store.SumByDay(ctx, name, start, end, tags)
	if err != nil {
		t.logError(name, "sum_by_day", err)
		return map[string]float64{}
	}
	return sums
}

// CleanupOldMetrics removes raw samples older than retentionDays and
// records how many were deleted as a counter. Returns 0 on failure.
func (t *Tracker) CleanupOldMetrics(ctx context.Context, retentionDays int) int64 {
	cutoff := t.now().AddDate(0, 0, -retentionDays)
	deleted, err := t.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		t.logError("metrics_cleanup", "delete", err)
		return 0
	}
	t.TrackCounter(ctx, "metrics_cleanup_deleted_count", float64(deleted), model.Tags{"source": "metrics_cleanup_job"})
	return deleted
}

func (t *Tracker) logError(name, op string, err error) {
	t.logger.Warn("metric operation failed",
		slog.String("metric", name),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}
