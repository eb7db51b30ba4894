// Package rollup aggregates raw metric samples into per-interval
// statistical summaries and answers trend queries over them.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/grayledger/pulse/internal/model"
)

// SampleSource reads raw samples for aggregation.
type SampleSource interface {
	SamplesBetween(ctx context.Context, start, end time.Time) ([]*model.MetricSample, error)
}

// Store persists rollups.
//
// Upsert must be idempotent per (name, kind, interval, aggregatedAt):
// re-running a rollup for the same period overwrites rather than
// duplicating.
type Store interface {
	Upsert(ctx context.Context, rollup *model.MetricRollup) error

	// Recent returns up to limit rollups for (name, interval), newest first.
	Recent(ctx context.Context, name string, interval model.RollupInterval, limit int) ([]*model.MetricRollup, error)

	// Previous returns the newest rollup for (name, kind, interval) with
	// aggregatedAt strictly before the given time.
	Previous(ctx context.Context, name string, kind model.RollupKind, interval model.RollupInterval, before time.Time) (*model.MetricRollup, bool, error)

	// LatestFor returns the newest rollup for (name, interval).
	LatestFor(ctx context.Context, name string, interval model.RollupInterval) (*model.MetricRollup, bool, error)

	// Between returns rollups for (name, interval) with aggregatedAt in
	// [start, end], oldest first.
	Between(ctx context.Context, name string, interval model.RollupInterval, start, end time.Time) ([]*model.MetricRollup, error)

	// DeleteOlderThan removes rollups aggregated before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Engine computes and queries rollups. Raw samples are never removed here;
// their retention sweep lives on the tracking side.
type Engine struct {
	samples SampleSource
	store   Store
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an Engine. Period boundaries are computed in loc
// (UTC when nil).
func NewEngine(samples SampleSource, store Store, loc *time.Location, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		samples: samples,
		store:   store,
		loc:     loc,
		logger:  logger.With("component", "rollup.engine"),
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// RunRollup aggregates the current period of the given interval: one
// rollup per distinct (name, kind) observed in the period. Returns how
// many rollups were written. Safe to re-run; periods are upserted.
func (e *Engine) RunRollup(ctx context.Context, interval model.RollupInterval) (int, error) {
	return e.RunRollupAt(ctx, interval, e.now())
}

// RunPreviousRollup re-aggregates the period immediately before the
// current one. Scheduled passes fire somewhere inside a period, so the
// samples recorded between the last pass and the period's end are only
// picked up by closing the period out on the next pass.
func (e *Engine) RunPreviousRollup(ctx context.Context, interval model.RollupInterval) (int, error) {
	if !model.ValidInterval(interval) {
		return 0, fmt.Errorf("unknown rollup interval %q", interval)
	}
	return e.RunRollupAt(ctx, interval, e.PeriodStart(interval, e.now()).Add(-time.Nanosecond))
}

// RunRollupAt aggregates the period containing t.
func (e *Engine) RunRollupAt(ctx context.Context, interval model.RollupInterval, t time.Time) (int, error) {
	if !model.ValidInterval(interval) {
		return 0, fmt.Errorf("unknown rollup interval %q", interval)
	}

	start := e.PeriodStart(interval, t)
	end := periodEnd(interval, start)

	samples, err := e.samples.SamplesBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("read samples for %s period: %w", interval, err)
	}

	groups := groupSamples(samples)
	written := 0
	for key, group := range groups {
		stats := computeStatistics(key.kind, group)
		rollup := &model.MetricRollup{
			Name:         key.name,
			Kind:         model.RollupKindFor(key.kind),
			Interval:     interval,
			AggregatedAt: start,
			Statistics:   stats,
			SampleCount:  len(group),
		}
		if err := rollup.Validate(); err != nil {
			return written, fmt.Errorf("rollup for %s: %w", key.name, err)
		}
		if err := e.store.Upsert(ctx, rollup); err != nil {
			return written, fmt.Errorf("upsert rollup for %s: %w", key.name, err)
		}
		written++
	}

	e.logger.Info("rollup complete",
		slog.String("interval", string(interval)),
		slog.Time("period_start", start),
		slog.Int("rollups", written),
		slog.Int("samples", len(samples)),
	)
	return written, nil
}

// Cleanup removes rollups older than retentionDays. Re-running simply
// finds nothing left to delete.
func (e *Engine) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := e.now().AddDate(0, 0, -retentionDays)
	deleted, err := e.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old rollups: %w", err)
	}
	e.logger.Info("cleaned up old rollups",
		slog.Int64("deleted", deleted),
		slog.Int("retention_days", retentionDays),
	)
	return deleted, nil
}

// AverageStatistic averages the named statistic across the most recent
// lookback rollups for (name, interval), skipping rollups that lack the
// field. Absent when no rollup carries it.
func (e *Engine) AverageStatistic(ctx context.Context, name, statistic string, interval model.RollupInterval, lookback int) (float64, bool, error) {
	rollups, err := e.store.Recent(ctx, name, interval, lookback)
	if err != nil {
		return 0, false, fmt.Errorf("load recent rollups: %w", err)
	}

	var sum float64
	var n int
	for _, r := range rollups {
		if v, ok := r.Stat(statistic); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return round2(sum / float64(n)), true, nil
}

// PercentChangeFromPrevious compares a rollup to its immediate predecessor
// of the same (name, kind, interval): ((current-previous)/|previous|)*100,
// rounded to two decimals. Absent when there is no predecessor or the
// predecessor's comparable value is exactly zero. The zero guard also
// suppresses legitimate 0-to-N transitions; callers relying on growth
// detection across a zero baseline must look at the raw values instead.
func (e *Engine) PercentChangeFromPrevious(ctx context.Context, rollup *model.MetricRollup) (float64, bool, error) {
	previous, ok, err := e.store.Previous(ctx, rollup.Name, rollup.Kind, rollup.Interval, rollup.AggregatedAt)
	if err != nil {
		return 0, false, fmt.Errorf("load previous rollup: %w", err)
	}
	if !ok {
		return 0, false, nil
	}

	current := rollup.ComparableValue()
	prev := previous.ComparableValue()
	if prev == 0 {
		return 0, false, nil
	}
	return round2((current - prev) / math.Abs(prev) * 100), true, nil
}

// LatestFor returns the newest rollup for (name, interval).
func (e *Engine) LatestFor(ctx context.Context, name string, interval model.RollupInterval) (*model.MetricRollup, bool, error) {
	return e.store.LatestFor(ctx, name, interval)
}

// TrendFor returns rollups for (name, interval) over the trailing
// lookbackDays, oldest first.
func (e *Engine) TrendFor(ctx context.Context, name string, interval model.RollupInterval, lookbackDays int) ([]*model.MetricRollup, error) {
	end := e.now()
	start := end.AddDate(0, 0, -lookbackDays)
	return e.store.Between(ctx, name, interval, start, end)
}

// PeriodStart truncates t to the start of its interval period in the
// engine's time zone. Weeks start on Monday.
func (e *Engine) PeriodStart(interval model.RollupInterval, t time.Time) time.Time {
	t = t.In(e.loc)
	switch interval {
	case model.IntervalHourly:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, e.loc)
	case model.IntervalDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
	default:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	}
}

func periodEnd(interval model.RollupInterval, start time.Time) time.Time {
	switch interval {
	case model.IntervalHourly:
		return start.Add(time.Hour)
	case model.IntervalDaily:
		return start.AddDate(0, 0, 1)
	default:
		return start.AddDate(0, 0, 7)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
