// Package model defines the core domain types.
package model

import (
	"fmt"
	"math"
	"time"
)

// MetricKind classifies how a sample's value should be aggregated.
type MetricKind string

const (
	// KindCounter is an increment-only metric; sums are meaningful.
	KindCounter MetricKind = "counter"
	// KindGauge is a point-in-time value; avg/min/max/latest are meaningful.
	KindGauge MetricKind = "gauge"
	// KindTiming is a duration in milliseconds; percentiles are meaningful.
	KindTiming MetricKind = "timing"
)

// ValidKind reports whether k is one of the supported metric kinds.
func ValidKind(k MetricKind) bool {
	switch k {
	case KindCounter, KindGauge, KindTiming:
		return true
	}
	return false
}

// MetricSample is a single observation of a named metric.
type MetricSample struct {
	ID         string
	Name       string
	Kind       MetricKind
	Value      float64
	Tags       Tags
	RecordedAt time.Time
}

// Validate checks the sample against the ingest contract.
// Tags may be nil; it is treated as the empty tag set.
func (s *MetricSample) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "must be present"}
	}
	if !ValidKind(s.Kind) {
		return &ValidationError{
			Field:  "kind",
			Reason: fmt.Sprintf("must be %q, %q, or %q", KindCounter, KindGauge, KindTiming),
		}
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return &ValidationError{Field: "value", Reason: "must be a finite number"}
	}
	if s.RecordedAt.IsZero() {
		return &ValidationError{Field: "recorded_at", Reason: "must be present"}
	}
	if err := s.Tags.Validate(); err != nil {
		return err
	}
	return nil
}
