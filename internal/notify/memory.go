package notify

import (
	"context"
	"sync"
)

// Dispatch records one delivered notification.
type Dispatch struct {
	MetricName   string
	CurrentValue float64
	Threshold    float64
	AlertType    string
}

// MemorySink records dispatches in memory for tests.
type MemorySink struct {
	mu         sync.Mutex
	dispatches []Dispatch
	// Err, when set, is returned from Notify to simulate sink failures.
	Err error
}

// NewMemorySink returns an empty recording sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Notify records the dispatch.
func (s *MemorySink) Notify(_ context.Context, metricName string, currentValue, threshold float64, alertType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.dispatches = append(s.dispatches, Dispatch{
		MetricName:   metricName,
		CurrentValue: currentValue,
		Threshold:    threshold,
		AlertType:    alertType,
	})
	return nil
}

// Dispatches returns a copy of everything recorded so far.
func (s *MemorySink) Dispatches() []Dispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Dispatch, len(s.dispatches))
	copy(out, s.dispatches)
	return out
}
