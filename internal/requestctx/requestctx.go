// Package requestctx carries per-request state through context.Context.
// Each request gets its own *State, so concurrent requests never observe
// each other's values.
package requestctx

import "time"

// State holds request-scoped identity and timing data.
// It is created by the request-id middleware and consumed by the
// logging middleware, the tracking facade, and handlers.
type State struct {
	RequestID string
	ClientIP  string
	UserAgent string

	// Optional identity, populated by handlers when known.
	UserID    string
	CompanyID string

	StartedAt     time.Time
	DBStartedAt   time.Time
	ViewStartedAt time.Time

	// Rate-limit metadata from the throttle decision, when one was made
	// for this request.
	RateLimit *RateLimitInfo

	durationOverrideMS *float64
	now                func() time.Time
}

// RateLimitInfo is the quota metadata from the throttle decision.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Denied    bool
}

// New creates a State with the clock started at now.
func New(requestID, clientIP, userAgent string, now time.Time) *State {
	return &State{
		RequestID: requestID,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		StartedAt: now,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Tests use this to avoid real sleeps.
func (s *State) SetClock(now func() time.Time) {
	s.now = now
}

// OverrideDurationMS forces DurationMS to return a fixed value for this
// request regardless of wall-clock time.
func (s *State) OverrideDurationMS(ms float64) {
	s.durationOverrideMS = &ms
}

// DurationMS is the elapsed request time in milliseconds. An explicit
// override wins over the computed value.
func (s *State) DurationMS() float64 {
	if s.durationOverrideMS != nil {
		return *s.durationOverrideMS
	}
	if s.StartedAt.IsZero() {
		return 0
	}
	return roundMS(s.clock()().Sub(s.StartedAt))
}

// MarkDBStart records the start of database work.
func (s *State) MarkDBStart() {
	s.DBStartedAt = s.clock()()
}

// DBTimeMS is milliseconds since MarkDBStart, or 0 when never marked.
func (s *State) DBTimeMS() float64 {
	if s.DBStartedAt.IsZero() {
		return 0
	}
	return roundMS(s.clock()().Sub(s.DBStartedAt))
}

// MarkViewStart records the start of response rendering.
func (s *State) MarkViewStart() {
	s.ViewStartedAt = s.clock()()
}

// ViewTimeMS is milliseconds since MarkViewStart, or 0 when never marked.
func (s *State) ViewTimeMS() float64 {
	if s.ViewStartedAt.IsZero() {
		return 0
	}
	return roundMS(s.clock()().Sub(s.ViewStartedAt))
}

func (s *State) clock() func() time.Time {
	if s.now == nil {
		return time.Now
	}
	return s.now
}

func roundMS(d time.Duration) float64 {
	ms := float64(d.Microseconds()) / 1000
	return float64(int64(ms*100+0.5)) / 100
}
