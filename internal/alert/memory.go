package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/grayledger/pulse/internal/model"
)

// MemoryStore keeps alerts in memory for tests and cache-less operation.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []*model.Alert
}

// NewMemoryStore returns an empty in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create appends an alert, assigning an ID when absent.
func (m *MemoryStore) Create(_ context.Context, alert *model.Alert) error {
	if alert.ID == "" {
		alert.ID = ulid.Make().String()
	}
	stored := *alert

	m.mu.Lock()
	m.alerts = append(m.alerts, &stored)
	m.mu.Unlock()
	return nil
}

// ActiveFor returns unresolved alerts for (alertType, metricName).
func (m *MemoryStore) ActiveFor(_ context.Context, alertType, metricName string) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Alert
	for _, a := range m.alerts {
		if a.Active() && a.Type == alertType && a.MetricName == metricName {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

// ActiveTriggeredSince reports whether an unresolved (alertType, metricName)
// alert was triggered after since.
func (m *MemoryStore) ActiveTriggeredSince(_ context.Context, alertType, metricName string, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.alerts {
		if a.Active() && a.Type == alertType && a.MetricName == metricName && a.TriggeredAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// Resolve stamps resolvedAt on the alert if still unresolved.
func (m *MemoryStore) Resolve(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if a.ID == id && a.ResolvedAt == nil {
			resolved := at
			a.ResolvedAt = &resolved
		}
	}
	return nil
}

// Recent returns up to limit alerts, newest triggered first.
func (m *MemoryStore) Recent(_ context.Context, limit int) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		copied := *a
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
