package metric

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/grayledger/pulse/internal/model"
)

// MemoryStore keeps samples in memory. It backs unit tests and lets the
// service run without Postgres in development.
type MemoryStore struct {
	mu      sync.RWMutex
	samples []*model.MetricSample
	loc     *time.Location
}

// NewMemoryStore returns an empty in-memory store grouping by-day queries
// in loc (UTC when nil).
func NewMemoryStore(loc *time.Location) *MemoryStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryStore{loc: loc}
}

// Record appends a sample. Safe for concurrent callers.
func (m *MemoryStore) Record(_ context.Context, sample *model.MetricSample) error {
	stored := *sample
	if stored.ID == "" {
		stored.ID = ulid.Make().String()
	}
	m.mu.Lock()
	m.samples = append(m.samples, &stored)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored samples.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

func (m *MemoryStore) matching(name string, start, end time.Time, tags model.Tags) []*model.MetricSample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.MetricSample
	for _, s := range m.samples {
		if name != "" && s.Name != name {
			continue
		}
		if !start.IsZero() && s.RecordedAt.Before(start) {
			continue
		}
		if !end.IsZero() && s.RecordedAt.After(end) {
			continue
		}
		if !s.Tags.Matches(tags) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Latest returns the most recent matching sample.
func (m *MemoryStore) Latest(_ context.Context, name string, tags model.Tags) (*model.MetricSample, bool, error) {
	var latest *model.MetricSample
	for _, s := range m.matching(name, time.Time{}, time.Time{}, tags) {
		if latest == nil || s.RecordedAt.After(latest.RecordedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, false, nil
	}
	return latest, true, nil
}

// Range returns matching samples ordered by recordedAt ascending.
func (m *MemoryStore) Range(_ context.Context, name string, start, end time.Time, tags model.Tags) ([]*model.MetricSample, error) {
	out := m.matching(name, start, end, tags)
	sortByTime(out)
	return out, nil
}

// Sum returns the arithmetic sum of matching values, 0 when none match.
func (m *MemoryStore) Sum(_ context.Context, name string, start, end time.Time, tags model.Tags) (float64, error) {
	var sum float64
	for _, s := range m.matching(name, start, end, tags) {
		sum += s.Value
	}
	return sum, nil
}

// Avg returns the mean of matching values, 0 when none match.
func (m *MemoryStore) Avg(_ context.Context, name string, start, end time.Time, tags model.Tags) (float64, error) {
	samples := m.matching(name, start, end, tags)
	if len(samples) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples)), nil
}

// Min returns the smallest matching value; ok is false when none match.
func (m *MemoryStore) Min(_ context.Context, name string, start, end time.Time, tags model.Tags) (float64, bool, error) {
	samples := m.matching(name, start, end, tags)
	if len(samples) == 0 {
		return 0, false, nil
	}
	min := samples[0].Value
	for _, s := range samples[1:] {
		if s.Value < min {
			min = s.Value
		}
	}
	return min, true, nil
}

// Max returns the largest matching value; ok is false when none match.
func (m *MemoryStore) Max(_ context.Context, name string, start, end time.Time, tags model.Tags) (float64, bool, error) {
	samples := m.matching(name, start, end, tags)
	if len(samples) == 0 {
		return 0, false, nil
	}
	max := samples[0].Value
	for _, s := range samples[1:] {
		if s.Value > max {
			max = s.Value
		}
	}
	return max, true, nil
}

// Percentile computes a linearly interpolated percentile of matching values.
func (m *MemoryStore) Percentile(_ context.Context, name string, p float64, start, end time.Time, tags model.Tags) (float64, bool, error) {
	samples := m.matching(name, start, end, tags)
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		values = append(values, s.Value)
	}
	v, ok := ContinuousPercentile(values, p)
	return v, ok, nil
}

// CountByDay counts matching samples per calendar day in the store's zone.
func (m *MemoryStore) CountByDay(_ context.Context, name string, start, end time.Time, tags model.Tags) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, s := range m.matching(name, start, end, tags) {
		out[s.RecordedAt.In(m.loc).Format("2006-01-02")]++
	}
	return out, nil
}

// SumByDay sums matching values per calendar day in the store's zone.
func (m *MemoryStore) SumByDay(_ context.Context, name string, start, end time.Time, tags model.Tags) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, s := range m.matching(name, start, end, tags) {
		out[s.RecordedAt.In(m.loc).Format("2006-01-02")] += s.Value
	}
	return out, nil
}

// SamplesBetween returns every sample with recordedAt in [start, end).
func (m *MemoryStore) SamplesBetween(_ context.Context, start, end time.Time) ([]*model.MetricSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.MetricSample
	for _, s := range m.samples {
		if s.RecordedAt.Before(start) || !s.RecordedAt.Before(end) {
			continue
		}
		out = append(out, s)
	}
	sortByTime(out)
	return out, nil
}

// DeleteOlderThan removes samples recorded before cutoff.
func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.samples[:0]
	var deleted int64
	for _, s := range m.samples {
		if s.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return deleted, nil
}

func sortByTime(samples []*model.MetricSample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].RecordedAt.Before(samples[j].RecordedAt)
	})
}
