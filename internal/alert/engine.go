// Package alert evaluates metric values against configured thresholds,
// maintains active/resolved alert state, and dispatches notifications
// with a per-(type, metric) cooldown.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grayledger/pulse/internal/model"
)

// Store persists alerts. Alerts are never deleted by the engine; resolved
// alerts are retained for audit.
type Store interface {
	Create(ctx context.Context, alert *model.Alert) error

	// ActiveFor returns unresolved alerts for (alertType, metricName).
	ActiveFor(ctx context.Context, alertType, metricName string) ([]*model.Alert, error)

	// ActiveTriggeredSince reports whether an unresolved alert for
	// (alertType, metricName) was triggered strictly after since.
	ActiveTriggeredSince(ctx context.Context, alertType, metricName string, since time.Time) (bool, error)

	// Resolve stamps resolvedAt on the alert if still unresolved.
	Resolve(ctx context.Context, id string, at time.Time) error

	// Recent returns the newest alerts, limited to limit, newest first.
	Recent(ctx context.Context, limit int) ([]*model.Alert, error)
}

// Notifier is the external notification sink. Dispatch is synchronous
// with the evaluation that triggered it.
type Notifier interface {
	Notify(ctx context.Context, metricName string, currentValue, threshold float64, alertType string) error
}

// Outcome classifies the result of evaluating one metric.
type Outcome string

const (
	OutcomeTriggered   Outcome = "triggered"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeResolved    Outcome = "resolved"
)

// CheckResult is the evaluation outcome for one metric.
type CheckResult struct {
	Status     Outcome
	AlertType  string
	MetricName string
	Value      float64
	// Alert is the created record on a fresh trigger, nil otherwise.
	Alert *model.Alert
}

// Results groups check results by outcome, one bucket per status.
type Results struct {
	Triggered   []CheckResult
	RateLimited []CheckResult
	Resolved    []CheckResult
}

// Engine runs threshold checks. Comparator direction is a property of the
// configured rule, not hardwired into the engine.
type Engine struct {
	store    Store
	notifier Notifier
	rules    map[string]ThresholdRule
	order    []string
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine over the given rules. A zero cooldown
// falls back to the 1 hour default.
func NewEngine(store Store, notifier Notifier, rules []ThresholdRule, cooldown time.Duration, logger *slog.Logger) *Engine {
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	ruleMap := make(map[string]ThresholdRule, len(rules))
	order := make([]string, 0, len(rules))
	for _, rule := range rules {
		ruleMap[rule.MetricName] = rule
		order = append(order, rule.MetricName)
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		rules:    ruleMap,
		order:    order,
		cooldown: cooldown,
		logger:   logger.With("component", "alert.engine"),
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// CheckCriticalThresholds evaluates every configured rule whose metric is
// present in metrics. Metrics without a rule, and rules without a metric
// value, are skipped; absence is not an error.
func (e *Engine) CheckCriticalThresholds(ctx context.Context, metrics map[string]float64) Results {
	var results Results
	for _, name := range e.order {
		value, ok := metrics[name]
		if !ok {
			continue
		}
		result, err := e.Check(ctx, name, value)
		if err != nil {
			e.logger.Error("threshold check failed",
				slog.String("metric", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		switch result.Status {
		case OutcomeTriggered:
			results.Triggered = append(results.Triggered, result)
		case OutcomeRateLimited:
			results.RateLimited = append(results.RateLimited, result)
		case OutcomeResolved:
			results.Resolved = append(results.Resolved, result)
		}
	}
	return results
}

// Check evaluates one metric value against its configured rule.
func (e *Engine) Check(ctx context.Context, metricName string, value float64) (CheckResult, error) {
	rule, ok := e.rules[metricName]
	if !ok {
		return CheckResult{}, fmt.Errorf("no threshold rule for metric %q", metricName)
	}

	result := CheckResult{
		AlertType:  rule.AlertType,
		MetricName: rule.MetricName,
		Value:      value,
	}

	if !rule.Breached(value, rule.Threshold) {
		// Resolution is never gated by the trigger cooldown.
		if err := e.resolveActive(ctx, rule.AlertType, rule.MetricName); err != nil {
			return CheckResult{}, err
		}
		result.Status = OutcomeResolved
		return result, nil
	}

	now := e.now()
	inCooldown, err := e.store.ActiveTriggeredSince(ctx, rule.AlertType, rule.MetricName, now.Add(-e.cooldown))
	if err != nil {
		return CheckResult{}, fmt.Errorf("cooldown check: %w", err)
	}
	if inCooldown {
		result.Status = OutcomeRateLimited
		return result, nil
	}

	created := &model.Alert{
		Type:         rule.AlertType,
		MetricName:   rule.MetricName,
		CurrentValue: value,
		Threshold:    rule.Threshold,
		TriggeredAt:  now,
		Description:  rule.Describe(value, rule.Threshold),
	}
	if err := created.Validate(now); err != nil {
		return CheckResult{}, err
	}
	if err := e.store.Create(ctx, created); err != nil {
		return CheckResult{}, fmt.Errorf("create alert: %w", err)
	}

	// One dispatch per Active transition. A sink failure is surfaced in
	// the log but the committed state transition stands.
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, rule.MetricName, value, rule.Threshold, rule.AlertType); err != nil {
			e.logger.Error("alert notification failed",
				slog.String("metric", rule.MetricName),
				slog.String("alert_type", rule.AlertType),
				slog.String("error", err.Error()),
			)
		}
	}

	result.Status = OutcomeTriggered
	result.Alert = created
	return result, nil
}

// Recent returns the newest alerts.
func (e *Engine) Recent(ctx context.Context, limit int) ([]*model.Alert, error) {
	return e.store.Recent(ctx, limit)
}

func (e *Engine) resolveActive(ctx context.Context, alertType, metricName string) error {
	active, err := e.store.ActiveFor(ctx, alertType, metricName)
	if err != nil {
		return fmt.Errorf("load active alerts: %w", err)
	}
	now := e.now()
	for _, a := range active {
		if err := e.store.Resolve(ctx, a.ID, now); err != nil {
			return fmt.Errorf("resolve alert %s: %w", a.ID, err)
		}
		e.logger.Info("alert resolved",
			slog.String("metric", metricName),
			slog.String("alert_type", alertType),
			slog.String("alert_id", a.ID),
		)
	}
	return nil
}
