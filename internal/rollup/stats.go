package rollup

import (
	"github.com/grayledger/pulse/internal/metric"
	"github.com/grayledger/pulse/internal/model"
)

type groupKey struct {
	name string
	kind model.MetricKind
}

// groupSamples buckets samples by (name, kind), preserving time order
// within each bucket.
func groupSamples(samples []*model.MetricSample) map[groupKey][]*model.MetricSample {
	groups := make(map[groupKey][]*model.MetricSample)
	for _, s := range samples {
		key := groupKey{name: s.Name, kind: s.Kind}
		groups[key] = append(groups[key], s)
	}
	return groups
}

// computeStatistics builds the statistics bundle for one (name, kind)
// group. Samples must be ordered by recordedAt ascending so that "latest"
// means last by time.
//
// Bundles by kind:
//
//	counter          -> {sum, count}
//	gauge            -> {avg, min, max, latest}
//	timing/histogram -> {sum, avg, min, max, count, p50, p95, p99}
func computeStatistics(kind model.MetricKind, samples []*model.MetricSample) map[string]float64 {
	if len(samples) == 0 {
		return nil
	}

	values := make([]float64, len(samples))
	sum := 0.0
	min, max := samples[0].Value, samples[0].Value
	for i, s := range samples {
		values[i] = s.Value
		sum += s.Value
		if s.Value < min {
			min = s.Value
		}
		if s.Value > max {
			max = s.Value
		}
	}
	count := float64(len(samples))
	avg := sum / count

	switch kind {
	case model.KindCounter:
		return map[string]float64{
			"sum":   sum,
			"count": count,
		}
	case model.KindGauge:
		return map[string]float64{
			"avg":    avg,
			"min":    min,
			"max":    max,
			"latest": samples[len(samples)-1].Value,
		}
	default:
		p50, _ := metric.ContinuousPercentile(values, 50)
		p95, _ := metric.ContinuousPercentile(values, 95)
		p99, _ := metric.ContinuousPercentile(values, 99)
		return map[string]float64{
			"sum":   sum,
			"avg":   avg,
			"min":   min,
			"max":   max,
			"count": count,
			"p50":   p50,
			"p95":   p95,
			"p99":   p99,
		}
	}
}
