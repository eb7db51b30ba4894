package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CounterStore is the shared window-counter store. Increment must be
// atomic under concurrent access: it bumps the counter at key, arranging
// for the entry to expire after ttl, and returns the post-increment count.
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Decision is the outcome of evaluating one request against the rule set.
type Decision struct {
	Allowed bool

	// RuleName identifies the denying rule, or on allow the rule whose
	// quota metadata applies (the matched non-safety rule when present,
	// else the safety net).
	RuleName string

	// Quota metadata for response headers. Valid only when HasMetadata.
	HasMetadata bool
	Limit       int
	Remaining   int
	Reset       time.Time

	// RetryAfter is the wait until the denying window resets, minimum
	// one second. Zero on allow.
	RetryAfter time.Duration
}

// Limiter evaluates requests against the configured rules using fixed
// windows aligned to period boundaries.
type Limiter struct {
	rules      []Rule
	store      CounterStore
	safelist   Safelist
	failClosed bool
	logger     *slog.Logger
	now        func() time.Time
}

// NewLimiter creates a Limiter. failClosed selects the behavior when the
// counter store is unreachable: deny (true) or allow (false, default
// recommendation so an infra outage does not become a full outage).
func NewLimiter(rules []Rule, store CounterStore, safelist Safelist, failClosed bool, logger *slog.Logger) *Limiter {
	return &Limiter{
		rules:      rules,
		store:      store,
		safelist:   safelist,
		failClosed: failClosed,
		logger:     logger.With("component", "ratelimit"),
		now:        time.Now,
	}
}

// SetClock overrides the time source for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Check evaluates the request. Every matching rule increments its own
// counter regardless of the other rules' outcomes, since limits are
// independent; the first denying rule in configuration order decides.
func (l *Limiter) Check(ctx context.Context, method, path, clientKey string) Decision {
	now := l.now()
	safelisted := l.safelist.Contains(clientKey)

	var deny *Decision
	var named *Decision
	var safety *Decision

	for i := range l.rules {
		rule := l.rules[i]
		if !rule.Matches(method, path) {
			continue
		}
		if rule.SafetyNet && safelisted {
			continue
		}

		windowStart := alignWindow(now, rule.Period)
		reset := windowStart.Add(rule.Period)
		key := fmt.Sprintf("throttle:%s:%s:%d", rule.Name, clientKey, windowStart.Unix())

		count, err := l.store.Increment(ctx, key, rule.Period)
		if err != nil {
			l.logger.Error("counter store unavailable",
				slog.String("rule", rule.Name),
				slog.String("client", clientKey),
				slog.Bool("fail_closed", l.failClosed),
				slog.String("error", err.Error()),
			)
			if l.failClosed && deny == nil {
				deny = &Decision{
					Allowed:     false,
					RuleName:    rule.Name,
					HasMetadata: true,
					Limit:       rule.Limit,
					Remaining:   0,
					Reset:       reset,
					RetryAfter:  retryAfter(reset, now),
				}
			}
			continue
		}

		remaining := rule.Limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		d := Decision{
			Allowed:     count <= int64(rule.Limit),
			RuleName:    rule.Name,
			HasMetadata: true,
			Limit:       rule.Limit,
			Remaining:   remaining,
			Reset:       reset,
		}
		if !d.Allowed && deny == nil {
			d.RetryAfter = retryAfter(reset, now)
			deny = &d
		}
		if rule.SafetyNet {
			safety = &d
		} else if named == nil {
			named = &d
		}
	}

	if deny != nil {
		return *deny
	}
	if named != nil {
		return *named
	}
	if safety != nil {
		return *safety
	}
	return Decision{Allowed: true}
}

// alignWindow floors t to the start of its fixed window.
func alignWindow(t time.Time, period time.Duration) time.Time {
	seconds := int64(period / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	start := t.Unix() - t.Unix()%seconds
	return time.Unix(start, 0)
}

func retryAfter(reset, now time.Time) time.Duration {
	wait := reset.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait
}
