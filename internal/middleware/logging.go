package middleware

import (
	"log/slog"
	"net/http"

	"github.com/grayledger/pulse/internal/requestctx"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Logger returns middleware that emits one structured record per request.
// Health probes are excluded to keep the request log signal clean.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			state := requestctx.FromContext(r.Context())

			attrs := []slog.Attr{
				slog.String("event", "request_completed"),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.status),
				slog.String("user_agent", r.UserAgent()),
			}

			if state != nil {
				attrs = append(attrs,
					slog.String("request_id", state.RequestID),
					slog.String("ip", state.ClientIP),
					slog.Float64("duration_ms", state.DurationMS()),
				)
				if state.UserID != "" {
					attrs = append(attrs, slog.String("user_id", state.UserID))
				}
				if state.CompanyID != "" {
					attrs = append(attrs, slog.String("company_id", state.CompanyID))
				}
				if db := state.DBTimeMS(); db > 0 {
					attrs = append(attrs, slog.Float64("db_ms", db))
				}
				if state.RateLimit != nil {
					attrs = append(attrs, slog.Bool("rate_limited", state.RateLimit.Denied))
				}
			} else {
				attrs = append(attrs, slog.String("ip", ClientIP(r)))
			}

			level := slog.LevelInfo
			if wrapped.status >= 500 {
				level = slog.LevelError
			} else if wrapped.status >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
