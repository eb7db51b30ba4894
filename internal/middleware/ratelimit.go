package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/grayledger/pulse/internal/ratelimit"
	"github.com/grayledger/pulse/internal/requestctx"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter *ratelimit.Limiter
	Enabled bool
}

// throttleResponse is the JSON body returned on a denied request.
type throttleResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	RetryAfter int    `json:"retry_after"`
	ResetAt    string `json:"reset_at"`
}

// RateLimit returns middleware that evaluates every request against the
// configured throttle rules. Denied requests get a 429 with quota headers
// and a structured body. Allowed requests get the X-RateLimit-* headers
// attached post-hoc, but only when the final response status is below 400.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			decision := cfg.Limiter.Check(r.Context(), r.Method, r.URL.Path, ip)

			if state := requestctx.FromContext(r.Context()); state != nil && decision.HasMetadata {
				state.RateLimit = &requestctx.RateLimitInfo{
					Limit:     decision.Limit,
					Remaining: decision.Remaining,
					Reset:     decision.Reset,
					Denied:    !decision.Allowed,
				}
			}

			if !decision.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("event", "rate_limit_exceeded"),
					slog.String("throttle", decision.RuleName),
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method),
					slog.String("user_agent", r.UserAgent()),
					slog.String("request_id", requestctx.RequestID(r.Context())),
				)
				writeThrottled(w, decision)
				return
			}

			if decision.HasMetadata {
				qw := &quotaWriter{ResponseWriter: w, decision: decision}
				next.ServeHTTP(qw, r)
				// A handler that wrote nothing becomes an implicit 200
				// once the server flushes; stamp the headers while they
				// can still go out.
				if !qw.wroteHeader {
					qw.setQuotaHeaders()
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeThrottled writes the 429 response with quota headers and body.
func writeThrottled(w http.ResponseWriter, d ratelimit.Decision) {
	retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(d.Reset.Unix(), 10))
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(throttleResponse{
		Error:      "Rate limit exceeded",
		Message:    "Too many requests. Please try again later.",
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		RetryAfter: retryAfter,
		ResetAt:    d.Reset.UTC().Format(time.RFC3339),
	})
}

// quotaWriter attaches rate-limit headers to successful responses.
// Error responses do not advertise quota; the throttle response itself
// is written by writeThrottled, not here.
type quotaWriter struct {
	http.ResponseWriter
	decision    ratelimit.Decision
	wroteHeader bool
}

func (qw *quotaWriter) WriteHeader(code int) {
	if qw.wroteHeader {
		return
	}
	qw.wroteHeader = true
	if code < 400 {
		qw.setQuotaHeaders()
	}
	qw.ResponseWriter.WriteHeader(code)
}

func (qw *quotaWriter) setQuotaHeaders() {
	qw.Header().Set(HeaderRateLimitLimit, strconv.Itoa(qw.decision.Limit))
	qw.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(qw.decision.Remaining))
	qw.Header().Set(HeaderRateLimitReset, strconv.FormatInt(qw.decision.Reset.Unix(), 10))
}

func (qw *quotaWriter) Write(b []byte) (int, error) {
	if !qw.wroteHeader {
		qw.WriteHeader(http.StatusOK)
	}
	return qw.ResponseWriter.Write(b)
}
