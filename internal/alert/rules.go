package alert

import (
	"fmt"

	"github.com/grayledger/pulse/internal/model"
)

// Comparator decides whether a value breaches a threshold. The direction
// is configured per metric category, set once at construction time.
type Comparator func(value, threshold float64) bool

// Above breaches when the value exceeds the threshold.
func Above(value, threshold float64) bool { return value > threshold }

// Below breaches when the value falls under the threshold.
func Below(value, threshold float64) bool { return value < threshold }

// ThresholdRule binds a metric to its threshold, comparator, and
// human-readable breach description.
type ThresholdRule struct {
	MetricName string
	AlertType  string
	Threshold  float64
	Breached   Comparator
	Describe   func(value, threshold float64) string
}

// DefaultRules builds the critical-threshold rule set:
// error_rate > errorRate, cache_hit_rate < cacheHitRate,
// job_failures > jobFailures per hour.
func DefaultRules(errorRate, cacheHitRate, jobFailures float64) []ThresholdRule {
	return []ThresholdRule{
		{
			MetricName: model.AlertErrorRate,
			AlertType:  model.AlertErrorRate,
			Threshold:  errorRate,
			Breached:   Above,
			Describe: func(v, t float64) string {
				return fmt.Sprintf("Error rate is %.2f%%, exceeds threshold of %.2f%%", v*100, t*100)
			},
		},
		{
			MetricName: model.AlertCacheHitRate,
			AlertType:  model.AlertCacheHitRate,
			Threshold:  cacheHitRate,
			Breached:   Below,
			Describe: func(v, t float64) string {
				return fmt.Sprintf("Cache hit rate is %.2f%%, falls below threshold of %.2f%%", v*100, t*100)
			},
		},
		{
			MetricName: model.AlertJobFailures,
			AlertType:  model.AlertJobFailures,
			Threshold:  jobFailures,
			Breached:   Above,
			Describe: func(v, t float64) string {
				return fmt.Sprintf("Job failures: %d per hour, exceeds threshold of %d", int(v), int(t))
			},
		},
	}
}
