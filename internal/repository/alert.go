package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/grayledger/pulse/internal/model"
)

// AlertRepository provides database access for alerts.
// It implements alert.Store.
type AlertRepository struct {
	repo *Repository
}

// NewAlertRepository creates an AlertRepository.
func NewAlertRepository(repo *Repository) *AlertRepository {
	return &AlertRepository{repo: repo}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *model.Alert) error {
	if alert.ID == "" {
		alert.ID = ulid.Make().String()
	}
	query := `
		INSERT INTO alerts (
			id, alert_type, metric_name, current_value, threshold,
			triggered_at, resolved_at, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := r.repo.pool.Exec(ctx, query,
		alert.ID, alert.Type, alert.MetricName, alert.CurrentValue, alert.Threshold,
		alert.TriggeredAt, alert.ResolvedAt, nullableString(alert.Description),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ActiveFor returns unresolved alerts for (alertType, metricName).
func (r *AlertRepository) ActiveFor(ctx context.Context, alertType, metricName string) ([]*model.Alert, error) {
	query := `
		SELECT id, alert_type, metric_name, current_value, threshold, triggered_at, resolved_at, COALESCE(description, '')
		FROM alerts
		WHERE alert_type = $1 AND metric_name = $2 AND resolved_at IS NULL
		ORDER BY triggered_at DESC
	`
	return r.queryMany(ctx, query, alertType, metricName)
}

// ActiveTriggeredSince reports whether an unresolved (alertType,
// metricName) alert was triggered after since. This backs the trigger
// cooldown window.
func (r *AlertRepository) ActiveTriggeredSince(ctx context.Context, alertType, metricName string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE alert_type = $1 AND metric_name = $2
			  AND resolved_at IS NULL AND triggered_at > $3
		)
	`
	var exists bool
	if err := r.repo.pool.QueryRow(ctx, query, alertType, metricName, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("query alert cooldown: %w", err)
	}
	return exists, nil
}

// Resolve stamps resolvedAt on the alert if still unresolved.
func (r *AlertRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE alerts SET resolved_at = $2, updated_at = NOW() WHERE id = $1 AND resolved_at IS NULL`
	if _, err := r.repo.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	return nil
}

// Recent returns up to limit alerts, newest triggered first.
func (r *AlertRepository) Recent(ctx context.Context, limit int) ([]*model.Alert, error) {
	query := `
		SELECT id, alert_type, metric_name, current_value, threshold, triggered_at, resolved_at, COALESCE(description, '')
		FROM alerts
		ORDER BY triggered_at DESC
		LIMIT $1
	`
	return r.queryMany(ctx, query, limit)
}

func (r *AlertRepository) queryMany(ctx context.Context, query string, args ...any) ([]*model.Alert, error) {
	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func scanAlert(row pgx.Row) (*model.Alert, error) {
	var alert model.Alert
	if err := row.Scan(
		&alert.ID, &alert.Type, &alert.MetricName, &alert.CurrentValue, &alert.Threshold,
		&alert.TriggeredAt, &alert.ResolvedAt, &alert.Description,
	); err != nil {
		return nil, err
	}
	return &alert, nil
}

// nullableString converts empty strings to NULL for optional columns.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
