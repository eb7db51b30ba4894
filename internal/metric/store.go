// Package metric provides the time-series sample store contract and the
// tracking facade used by business logic.
package metric

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/grayledger/pulse/internal/model"
)

// ErrStoreUnavailable wraps failures of the underlying sample store.
var ErrStoreUnavailable = errors.New("metric store unavailable")

// Store is the durable append-only sample store.
//
// Zero time values for start/end mean unbounded on that side. Tag filters
// AND together with exact equality per key; nil matches everything.
// Aggregates over an empty result set return neutral values: Sum and Avg
// return 0, Min/Max/Percentile report absence via their ok result.
type Store interface {
	// Record appends one sample. The sample must already be validated.
	Record(ctx context.Context, sample *model.MetricSample) error

	// Latest returns the most recent sample for name, if any.
	Latest(ctx context.Context, name string, tags model.Tags) (*model.MetricSample, bool, error)

	// Range returns samples for name with recordedAt in [start, end],
	// ordered by recordedAt ascending.
	Range(ctx context.Context, name string, start, end time.Time, tags model.Tags) ([]*model.MetricSample, error)

	Sum(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, error)
	Avg(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, error)
	Min(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, bool, error)
	Max(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, bool, error)

	// Percentile computes the continuous (linearly interpolated)
	// percentile p in [0, 100] over matching sample values.
	Percentile(ctx context.Context, name string, p float64, start, end time.Time, tags model.Tags) (float64, bool, error)

	// CountByDay and SumByDay group matching samples by calendar day in
	// the store's configured time zone. Keys are "YYYY-MM-DD".
	CountByDay(ctx context.Context, name string, start, end time.Time, tags model.Tags) (map[string]int64, error)
	SumByDay(ctx context.Context, name string, start, end time.Time, tags model.Tags) (map[string]float64, error)

	// SamplesBetween returns every sample with recordedAt in [start, end)
	// regardless of name, ordered by recordedAt ascending. The rollup
	// engine uses it to aggregate a whole period in one pass.
	SamplesBetween(ctx context.Context, start, end time.Time) ([]*model.MetricSample, error)

	// DeleteOlderThan removes samples recorded before cutoff and returns
	// how many were deleted. Re-running is safe; it simply finds nothing.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ContinuousPercentile computes percentile p in [0, 100] over values using
// linear interpolation between closest ranks (PERCENTILE_CONT semantics).
// The second result is false when values is empty.
func ContinuousPercentile(values []float64, p float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0], true
	}
	if p >= 100 {
		return sorted[len(sorted)-1], true
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	frac := rank - float64(lower)
	if lower+1 >= len(sorted) {
		return sorted[lower], true
	}
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower]), true
}
