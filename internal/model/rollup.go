package model

import (
	"fmt"
	"time"
)

// RollupKind classifies the statistics bundle stored on a rollup.
// Timing samples roll up as histograms.
type RollupKind string

const (
	RollupCounter   RollupKind = "counter"
	RollupGauge     RollupKind = "gauge"
	RollupHistogram RollupKind = "histogram"
)

// RollupInterval is the fixed time bucket a rollup summarizes.
type RollupInterval string

const (
	IntervalHourly RollupInterval = "hourly"
	IntervalDaily  RollupInterval = "daily"
	IntervalWeekly RollupInterval = "weekly"
)

// ValidInterval reports whether i is a supported rollup interval.
func ValidInterval(i RollupInterval) bool {
	switch i {
	case IntervalHourly, IntervalDaily, IntervalWeekly:
		return true
	}
	return false
}

// RollupKindFor maps a sample kind to the rollup kind it aggregates as.
func RollupKindFor(k MetricKind) RollupKind {
	switch k {
	case KindCounter:
		return RollupCounter
	case KindGauge:
		return RollupGauge
	default:
		return RollupHistogram
	}
}

// MetricRollup is a pre-aggregated summary of samples over one period.
//
// Statistics schema by kind:
//   - counter:   {sum, count}
//   - gauge:     {avg, min, max, latest}
//   - histogram: {sum, avg, min, max, count, p50, p95, p99}
type MetricRollup struct {
	ID           string
	Name         string
	Kind         RollupKind
	Interval     RollupInterval
	AggregatedAt time.Time
	Statistics   map[string]float64
	SampleCount  int
}

// Validate checks the rollup invariants before persistence.
func (r *MetricRollup) Validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "must be present"}
	}
	switch r.Kind {
	case RollupCounter, RollupGauge, RollupHistogram:
	default:
		return &ValidationError{Field: "kind", Reason: "must be counter, gauge, or histogram"}
	}
	if !ValidInterval(r.Interval) {
		return &ValidationError{Field: "interval", Reason: "must be hourly, daily, or weekly"}
	}
	if r.AggregatedAt.IsZero() {
		return &ValidationError{Field: "aggregated_at", Reason: "must be present"}
	}
	if len(r.Statistics) == 0 {
		return &ValidationError{Field: "statistics", Reason: "must be non-empty"}
	}
	if r.SampleCount < 0 {
		return &ValidationError{Field: "sample_count", Reason: "must be >= 0"}
	}
	return nil
}

// Stat returns the named statistic, reporting whether it is present.
func (r *MetricRollup) Stat(name string) (float64, bool) {
	v, ok := r.Statistics[name]
	return v, ok
}

// ComparableValue extracts the statistic most appropriate for comparing
// this rollup to a neighbor of the same kind.
func (r *MetricRollup) ComparableValue() float64 {
	switch r.Kind {
	case RollupCounter:
		return r.Statistics["sum"]
	case RollupGauge:
		if v, ok := r.Statistics["avg"]; ok {
			return v
		}
		return r.Statistics["latest"]
	default:
		if v, ok := r.Statistics["avg"]; ok {
			return v
		}
		return r.Statistics["sum"]
	}
}

// ExceedsThreshold reports whether the rollup's dominant value is above t.
func (r *MetricRollup) ExceedsThreshold(t float64) bool {
	for _, key := range []string{"max", "avg", "sum", "latest"} {
		if v, ok := r.Statistics[key]; ok {
			return v > t
		}
	}
	return false
}

// BelowThreshold reports whether the rollup's representative value is under t.
func (r *MetricRollup) BelowThreshold(t float64) bool {
	for _, key := range []string{"avg", "latest"} {
		if v, ok := r.Statistics[key]; ok {
			return v < t
		}
	}
	return false
}

// Summary renders a short human-readable view of the statistics.
func (r *MetricRollup) Summary() string {
	s := r.Statistics
	switch r.Kind {
	case RollupCounter:
		return fmt.Sprintf("Total: %g, Count: %g", s["sum"], s["count"])
	case RollupGauge:
		return fmt.Sprintf("Avg: %g, Min: %g, Max: %g, Latest: %g", s["avg"], s["min"], s["max"], s["latest"])
	default:
		return fmt.Sprintf("Avg: %g, p95: %g, p99: %g, Count: %g", s["avg"], s["p95"], s["p99"], s["count"])
	}
}
