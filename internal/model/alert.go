package model

import "time"

// Alert types for critical threshold monitoring.
const (
	AlertErrorRate    = "error_rate"
	AlertCacheHitRate = "cache_hit_rate"
	AlertJobFailures  = "job_failures"
)

// Alert records a threshold breach. An alert is active until resolved;
// resolved alerts are retained for audit and never deleted by the engine.
type Alert struct {
	ID           string
	Type         string
	MetricName   string
	CurrentValue float64
	Threshold    float64
	TriggeredAt  time.Time
	ResolvedAt   *time.Time
	Description  string
}

// Active reports whether the alert has not been resolved yet.
func (a *Alert) Active() bool {
	return a.ResolvedAt == nil
}

// Duration is how long the alert has been (or was) active.
func (a *Alert) Duration(now time.Time) time.Duration {
	end := now
	if a.ResolvedAt != nil {
		end = *a.ResolvedAt
	}
	return end.Sub(a.TriggeredAt)
}

// Validate checks the alert invariants.
func (a *Alert) Validate(now time.Time) error {
	if a.Type == "" {
		return &ValidationError{Field: "alert_type", Reason: "must be present"}
	}
	if a.MetricName == "" {
		return &ValidationError{Field: "metric_name", Reason: "must be present"}
	}
	if a.TriggeredAt.IsZero() {
		return &ValidationError{Field: "triggered_at", Reason: "must be present"}
	}
	if a.TriggeredAt.After(now) {
		return &ValidationError{Field: "triggered_at", Reason: "cannot be in the future"}
	}
	if a.ResolvedAt != nil && a.ResolvedAt.Before(a.TriggeredAt) {
		return &ValidationError{Field: "resolved_at", Reason: "must be after triggered_at"}
	}
	return nil
}
