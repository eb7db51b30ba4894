package rollup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/grayledger/pulse/internal/model"
)

// MemoryStore keeps rollups in memory for tests and cache-less operation.
type MemoryStore struct {
	mu      sync.RWMutex
	rollups []*model.MetricRollup
}

// NewMemoryStore returns an empty in-memory rollup store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Upsert replaces any rollup with the same (name, kind, interval,
// aggregatedAt), otherwise appends.
func (m *MemoryStore) Upsert(_ context.Context, rollup *model.MetricRollup) error {
	stored := *rollup
	if stored.ID == "" {
		stored.ID = ulid.Make().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rollups {
		if r.Name == stored.Name && r.Kind == stored.Kind &&
			r.Interval == stored.Interval && r.AggregatedAt.Equal(stored.AggregatedAt) {
			stored.ID = r.ID
			m.rollups[i] = &stored
			return nil
		}
	}
	m.rollups = append(m.rollups, &stored)
	return nil
}

// Len reports the number of stored rollups.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rollups)
}

// Recent returns up to limit rollups for (name, interval), newest first.
func (m *MemoryStore) Recent(_ context.Context, name string, interval model.RollupInterval, limit int) ([]*model.MetricRollup, error) {
	out := m.filter(func(r *model.MetricRollup) bool {
		return r.Name == name && r.Interval == interval
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AggregatedAt.After(out[j].AggregatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Previous returns the newest rollup for (name, kind, interval) older than before.
func (m *MemoryStore) Previous(_ context.Context, name string, kind model.RollupKind, interval model.RollupInterval, before time.Time) (*model.MetricRollup, bool, error) {
	var prev *model.MetricRollup
	for _, r := range m.filter(func(r *model.MetricRollup) bool {
		return r.Name == name && r.Kind == kind && r.Interval == interval && r.AggregatedAt.Before(before)
	}) {
		if prev == nil || r.AggregatedAt.After(prev.AggregatedAt) {
			prev = r
		}
	}
	if prev == nil {
		return nil, false, nil
	}
	return prev, true, nil
}

// LatestFor returns the newest rollup for (name, interval).
func (m *MemoryStore) LatestFor(_ context.Context, name string, interval model.RollupInterval) (*model.MetricRollup, bool, error) {
	var latest *model.MetricRollup
	for _, r := range m.filter(func(r *model.MetricRollup) bool {
		return r.Name == name && r.Interval == interval
	}) {
		if latest == nil || r.AggregatedAt.After(latest.AggregatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, false, nil
	}
	return latest, true, nil
}

// Between returns rollups for (name, interval) in [start, end], oldest first.
func (m *MemoryStore) Between(_ context.Context, name string, interval model.RollupInterval, start, end time.Time) ([]*model.MetricRollup, error) {
	out := m.filter(func(r *model.MetricRollup) bool {
		return r.Name == name && r.Interval == interval &&
			!r.AggregatedAt.Before(start) && !r.AggregatedAt.After(end)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AggregatedAt.Before(out[j].AggregatedAt)
	})
	return out, nil
}

// DeleteOlderThan removes rollups aggregated before cutoff.
func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rollups[:0]
	var deleted int64
	for _, r := range m.rollups {
		if r.AggregatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rollups = kept
	return deleted, nil
}

func (m *MemoryStore) filter(keep func(*model.MetricRollup) bool) []*model.MetricRollup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.MetricRollup
	for _, r := range m.rollups {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
