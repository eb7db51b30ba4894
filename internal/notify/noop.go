package notify

import "context"

// NoopSink discards notifications. Used when no webhook is configured.
type NoopSink struct{}

// NewNoopSink creates a NoopSink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

// Notify does nothing and always succeeds.
func (NoopSink) Notify(context.Context, string, float64, float64, string) error {
	return nil
}
