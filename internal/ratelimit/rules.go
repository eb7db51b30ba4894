// Package ratelimit classifies requests against a fixed rule set and
// produces allow/deny decisions with quota metadata, backed by a shared
// window-counter store.
package ratelimit

import "time"

// Rule is a static throttle configuration entry. Matching is by exact
// path (and method when set); this mirrors the deployed configuration
// where every throttled endpoint is a known fixed path. Endpoints not
// named by any rule fall only under the safety net.
type Rule struct {
	Name   string
	Method string // empty matches any method
	Path   string // exact match; ignored when MatchAll
	Limit  int
	Period time.Duration

	// MatchAll makes the rule apply to every request regardless of path.
	MatchAll bool
	// SafetyNet marks the broad per-IP baseline rule. Safelisted clients
	// bypass it; named rules still apply to them.
	SafetyNet bool
}

// Matches reports whether the rule applies to the request line.
func (r Rule) Matches(method, path string) bool {
	if r.MatchAll {
		return true
	}
	if r.Method != "" && r.Method != method {
		return false
	}
	return r.Path == path
}

// DefaultRules is the production throttle set: six named endpoint rules
// plus the global safety net, all keyed by client IP. Order matters; the
// first denying rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "otp/generation", Method: "POST", Path: "/v1/otp/generate", Limit: 3, Period: 15 * time.Minute},
		{Name: "otp/validation", Method: "POST", Path: "/v1/otp/validate", Limit: 5, Period: 10 * time.Minute},
		{Name: "receipt/upload", Method: "POST", Path: "/v1/receipts", Limit: 50, Period: time.Hour},
		{Name: "ai/categorization", Method: "POST", Path: "/v1/categorize", Limit: 200, Period: time.Hour},
		{Name: "entry/creation", Method: "POST", Path: "/v1/entries", Limit: 100, Period: time.Hour},
		{Name: "api/general", Path: "/v1/ping", Limit: 1000, Period: time.Hour},
		{Name: "requests/ip", Limit: 5, Period: time.Second, MatchAll: true, SafetyNet: true},
	}
}
