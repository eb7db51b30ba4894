package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/grayledger/pulse/internal/model"
)

// RollupRepository provides database access for metric rollups.
// It implements rollup.Store.
type RollupRepository struct {
	repo *Repository
}

// NewRollupRepository creates a RollupRepository.
func NewRollupRepository(repo *Repository) *RollupRepository {
	return &RollupRepository{repo: repo}
}

// Upsert writes a rollup, replacing any existing row for the same
// (name, kind, interval, aggregatedAt) so re-running a period is
// idempotent.
func (r *RollupRepository) Upsert(ctx context.Context, rollup *model.MetricRollup) error {
	if rollup.ID == "" {
		rollup.ID = ulid.Make().String()
	}
	statsJSON, err := json.Marshal(rollup.Statistics)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}

	query := `
		INSERT INTO metric_rollups (
			id, metric_name, metric_type, rollup_interval, aggregated_at,
			statistics, sample_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (metric_name, metric_type, rollup_interval, aggregated_at) DO UPDATE SET
			statistics = EXCLUDED.statistics,
			sample_count = EXCLUDED.sample_count,
			updated_at = NOW()
	`
	_, err = r.repo.pool.Exec(ctx, query,
		rollup.ID, rollup.Name, string(rollup.Kind), string(rollup.Interval),
		rollup.AggregatedAt, statsJSON, rollup.SampleCount,
	)
	if err != nil {
		return fmt.Errorf("upsert rollup: %w", err)
	}
	return nil
}

// Recent returns up to limit rollups for (name, interval), newest first.
func (r *RollupRepository) Recent(ctx context.Context, name string, interval model.RollupInterval, limit int) ([]*model.MetricRollup, error) {
	query := `
		SELECT id, metric_name, metric_type, rollup_interval, aggregated_at, statistics, sample_count
		FROM metric_rollups
		WHERE metric_name = $1 AND rollup_interval = $2
		ORDER BY aggregated_at DESC
		LIMIT $3
	`
	return r.queryMany(ctx, query, name, string(interval), limit)
}

// Previous returns the newest rollup for (name, kind, interval) with
// aggregatedAt strictly before the given time.
func (r *RollupRepository) Previous(ctx context.Context, name string, kind model.RollupKind, interval model.RollupInterval, before time.Time) (*model.MetricRollup, bool, error) {
	query := `
		SELECT id, metric_name, metric_type, rollup_interval, aggregated_at, statistics, sample_count
		FROM metric_rollups
		WHERE metric_name = $1 AND metric_type = $2 AND rollup_interval = $3 AND aggregated_at < $4
		ORDER BY aggregated_at DESC
		LIMIT 1
	`
	rollup, err := scanRollup(r.repo.pool.QueryRow(ctx, query, name, string(kind), string(interval), before))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query previous rollup: %w", err)
	}
	return rollup, true, nil
}

// LatestFor returns the newest rollup for (name, interval).
func (r *RollupRepository) LatestFor(ctx context.Context, name string, interval model.RollupInterval) (*model.MetricRollup, bool, error) {
	query := `
		SELECT id, metric_name, metric_type, rollup_interval, aggregated_at, statistics, sample_count
		FROM metric_rollups
		WHERE metric_name = $1 AND rollup_interval = $2
		ORDER BY aggregated_at DESC
		LIMIT 1
	`
	rollup, err := scanRollup(r.repo.pool.QueryRow(ctx, query, name, string(interval)))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query latest rollup: %w", err)
	}
	return rollup, true, nil
}

// Between returns rollups for (name, interval) in [start, end], oldest first.
func (r *RollupRepository) Between(ctx context.Context, name string, interval model.RollupInterval, start, end time.Time) ([]*model.MetricRollup, error) {
	query := `
		SELECT id, metric_name, metric_type, rollup_interval, aggregated_at, statistics, sample_count
		FROM metric_rollups
		WHERE metric_name = $1 AND rollup_interval = $2
		  AND aggregated_at >= $3 AND aggregated_at <= $4
		ORDER BY aggregated_at ASC
	`
	return r.queryMany(ctx, query, name, string(interval), start, end)
}

// DeleteOlderThan removes rollups aggregated before cutoff.
func (r *RollupRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.repo.pool.Exec(ctx, `DELETE FROM metric_rollups WHERE aggregated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old rollups: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RollupRepository) queryMany(ctx context.Context, query string, args ...any) ([]*model.MetricRollup, error) {
	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rollups: %w", err)
	}
	defer rows.Close()

	var rollups []*model.MetricRollup
	for rows.Next() {
		rollup, err := scanRollup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		rollups = append(rollups, rollup)
	}
	return rollups, rows.Err()
}

func scanRollup(row pgx.Row) (*model.MetricRollup, error) {
	var rollup model.MetricRollup
	var kind, interval string
	var statsJSON []byte
	if err := row.Scan(&rollup.ID, &rollup.Name, &kind, &interval, &rollup.AggregatedAt, &statsJSON, &rollup.SampleCount); err != nil {
		return nil, err
	}
	rollup.Kind = model.RollupKind(kind)
	rollup.Interval = model.RollupInterval(interval)
	if err := json.Unmarshal(statsJSON, &rollup.Statistics); err != nil {
		return nil, fmt.Errorf("unmarshal statistics: %w", err)
	}
	return &rollup, nil
}
