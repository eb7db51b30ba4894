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

// MetricRepository provides database access for raw metric samples.
// It implements metric.Store.
type MetricRepository struct {
	repo *Repository
	loc  *time.Location
}

// NewMetricRepository creates a MetricRepository grouping by-day queries
// in loc (UTC when nil).
func NewMetricRepository(repo *Repository, loc *time.Location) *MetricRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &MetricRepository{repo: repo, loc: loc}
}

// Record appends one sample. Inserts are atomic at the row level; no
// application locking is needed under concurrent callers.
func (r *MetricRepository) Record(ctx context.Context, sample *model.MetricSample) error {
	if sample.ID == "" {
		sample.ID = ulid.Make().String()
	}
	tagsJSON, err := json.Marshal(sample.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	query := `
		INSERT INTO metrics (id, metric_name, metric_type, value, tags, recorded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err = r.repo.pool.Exec(ctx, query,
		sample.ID, sample.Name, string(sample.Kind), sample.Value, tagsJSON, sample.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert metric sample: %w", err)
	}
	return nil
}

// Latest returns the most recent sample for name.
func (r *MetricRepository) Latest(ctx context.Context, name string, tags model.Tags) (*model.MetricSample, bool, error) {
	where, args, err := sampleFilter(name, time.Time{}, time.Time{}, tags)
	if err != nil {
		return nil, false, err
	}

	query := fmt.Sprintf(`
		SELECT id, metric_name, metric_type, value, tags, recorded_at
		FROM metrics
		WHERE %s
		ORDER BY recorded_at DESC
		LIMIT 1
	`, where)

	sample, err := r.scanOne(r.repo.pool.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query latest sample: %w", err)
	}
	return sample, true, nil
}

// Range returns samples for name recorded in [start, end], oldest first.
func (r *MetricRepository) Range(ctx context.Context, name string, start, end time.Time, tags model.Tags) ([]*model.MetricSample, error) {
	where, args, err := sampleFilter(name, start, end, tags)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, metric_name, metric_type, value, tags, recorded_at
		FROM metrics
		WHERE %s
		ORDER BY recorded_at ASC
	`, where)

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sample range: %w", err)
	}
	defer rows.Close()

	var samples []*model.MetricSample
	for rows.Next() {
		sample, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// Sum returns the arithmetic sum of matching values, 0 when none match.
func (r *MetricRepository) Sum(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, error) {
	return r.aggregate(ctx, "COALESCE(SUM(value), 0)", name, start, end, tags)
}

// Avg returns the mean of matching values, 0 when none match.
func (r *MetricRepository) Avg(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, error) {
	return r.aggregate(ctx, "COALESCE(AVG(value), 0)", name, start, end, tags)
}

// Min returns the smallest matching value; ok is false when none match.
func (r *MetricRepository) Min(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, bool, error) {
	return r.optionalAggregate(ctx, "MIN(value)", name, start, end, tags)
}

// Max returns the largest matching value; ok is false when none match.
func (r *MetricRepository) Max(ctx context.Context, name string, start, end time.Time, tags model.Tags) (float64, bool, error) {
	return r.optionalAggregate(ctx, "MAX(value)", name, start, end, tags)
}

// Percentile uses PERCENTILE_CONT for continuous percentile calculation.
func (r *MetricRepository) Percentile(ctx context.Context, name string, p float64, start, end time.Time, tags model.Tags) (float64, bool, error) {
	where, args, err := sampleFilter(name, start, end, tags)
	if err != nil {
		return 0, false, err
	}
	args = append(args, p/100)

	query := fmt.Sprintf(`
		SELECT PERCENTILE_CONT($%d) WITHIN GROUP (ORDER BY value)
		FROM metrics
		WHERE %s
	`, len(args), where)

	var value *float64
	if err := r.repo.pool.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		return 0, false, fmt.Errorf("query percentile: %w", err)
	}
	if value == nil {
		return 0, false, nil
	}
	return *value, true, nil
}

// CountByDay counts matching samples per calendar day in the repository's zone.
func (r *MetricRepository) CountByDay(ctx context.Context, name string, start, end time.Time, tags model.Tags) (map[string]int64, error) {
	rows, err := r.byDay(ctx, "COUNT(*)", name, start, end, tags)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		out[day] = count
	}
	return out, rows.Err()
}

// SumByDay sums matching values per calendar day in the repository's zone.
func (r *MetricRepository) SumByDay(ctx context.Context, name string, start, end time.Time, tags model.Tags) (map[string]float64, error) {
	rows, err := r.byDay(ctx, "SUM(value)", name, start, end, tags)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var day string
		var sum float64
		if err := rows.Scan(&day, &sum); err != nil {
			return nil, fmt.Errorf("scan day sum: %w", err)
		}
		out[day] = sum
	}
	return out, rows.Err()
}

// SamplesBetween returns every sample with recordedAt in [start, end),
// oldest first, for rollup aggregation.
func (r *MetricRepository) SamplesBetween(ctx context.Context, start, end time.Time) ([]*model.MetricSample, error) {
	query := `
		SELECT id, metric_name, metric_type, value, tags, recorded_at
		FROM metrics
		WHERE recorded_at >= $1 AND recorded_at < $2
		ORDER BY recorded_at ASC
	`
	rows, err := r.repo.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query samples between: %w", err)
	}
	defer rows.Close()

	var samples []*model.MetricSample
	for rows.Next() {
		sample, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// DeleteOlderThan removes samples recorded before cutoff.
func (r *MetricRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.repo.pool.Exec(ctx, `DELETE FROM metrics WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old samples: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MetricRepository) aggregate(ctx context.Context, expr, name string, start, end time.Time, tags model.Tags) (float64, error) {
	where, args, err := sampleFilter(name, start, end, tags)
	if err != nil {
		return 0, err
	}
	var value float64
	query := fmt.Sprintf(`SELECT %s FROM metrics WHERE %s`, expr, where)
	if err := r.repo.pool.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		return 0, fmt.Errorf("query aggregate: %w", err)
	}
	return value, nil
}

func (r *MetricRepository) optionalAggregate(ctx context.Context, expr, name string, start, end time.Time, tags model.Tags) (float64, bool, error) {
	where, args, err := sampleFilter(name, start, end, tags)
	if err != nil {
		return 0, false, err
	}
	var value *float64
	query := fmt.Sprintf(`SELECT %s FROM metrics WHERE %s`, expr, where)
	if err := r.repo.pool.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		return 0, false, fmt.Errorf("query aggregate: %w", err)
	}
	if value == nil {
		return 0, false, nil
	}
	return *value, true, nil
}

func (r *MetricRepository) byDay(ctx context.Context, expr, name string, start, end time.Time, tags model.Tags) (pgx.Rows, error) {
	where, args, err := sampleFilter(name, start, end, tags)
	if err != nil {
		return nil, err
	}
	args = append(args, r.loc.String())

	query := fmt.Sprintf(`
		SELECT to_char(recorded_at AT TIME ZONE $%d, 'YYYY-MM-DD') AS day, %s
		FROM metrics
		WHERE %s
		GROUP BY day
	`, len(args), expr, where)

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by day: %w", err)
	}
	return rows, nil
}

// sampleFilter builds the WHERE clause shared by all sample queries.
// Tags filter via jsonb containment, which ANDs exact key equality.
func sampleFilter(name string, start, end time.Time, tags model.Tags) (string, []any, error) {
	where := "1=1"
	var args []any

	if name != "" {
		args = append(args, name)
		where += fmt.Sprintf(" AND metric_name = $%d", len(args))
	}
	if !start.IsZero() {
		args = append(args, start)
		where += fmt.Sprintf(" AND recorded_at >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end)
		where += fmt.Sprintf(" AND recorded_at <= $%d", len(args))
	}
	if len(tags) > 0 {
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return "", nil, fmt.Errorf("marshal tag filter: %w", err)
		}
		args = append(args, tagsJSON)
		where += fmt.Sprintf(" AND tags @> $%d", len(args))
	}
	return where, args, nil
}

func (r *MetricRepository) scanOne(row pgx.Row) (*model.MetricSample, error) {
	var sample model.MetricSample
	var kind string
	var tagsJSON []byte
	if err := row.Scan(&sample.ID, &sample.Name, &kind, &sample.Value, &tagsJSON, &sample.RecordedAt); err != nil {
		return nil, err
	}
	sample.Kind = model.MetricKind(kind)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &sample.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return &sample, nil
}
