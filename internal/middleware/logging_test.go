package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grayledger/pulse/internal/requestctx"
)

func logChain(buf *bytes.Buffer, handler http.Handler) http.Handler {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	return RequestContext(Logger(logger)(handler))
}

func parseRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode log record: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func serve(h http.Handler, method, path string) {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "198.51.100.7:54321"
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestLogger_EmitsRequestRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	chain := logChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	serve(chain, "POST", "/v1/entries")

	records := parseRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]

	if rec["event"] != "request_completed" {
		t.Errorf("event = %v, want request_completed", rec["event"])
	}
	if rec["method"] != "POST" || rec["path"] != "/v1/entries" {
		t.Errorf("method/path = %v/%v", rec["method"], rec["path"])
	}
	if rec["status"] != float64(201) {
		t.Errorf("status = %v, want 201", rec["status"])
	}
	if rec["request_id"] == "" || rec["request_id"] == nil {
		t.Error("request_id missing")
	}
	if rec["ip"] != "198.51.100.7" {
		t.Errorf("ip = %v, want 198.51.100.7", rec["ip"])
	}
	if _, ok := rec["duration_ms"]; !ok {
		t.Error("duration_ms missing")
	}
	// No throttle decision was made for this request.
	if _, ok := rec["rate_limited"]; ok {
		t.Error("rate_limited should be absent without a throttle decision")
	}
}

func TestLogger_SkipsHealthProbes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	chain := logChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve(chain, "GET", "/healthz")
	serve(chain, "GET", "/readyz")

	if records := parseRecords(t, &buf); len(records) != 0 {
		t.Errorf("health probes produced %d records, want 0", len(records))
	}
}

func TestLogger_IncludesIdentityWhenKnown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	chain := logChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := requestctx.FromContext(r.Context())
		state.UserID = "user-9"
		state.CompanyID = "company-3"
		w.WriteHeader(http.StatusOK)
	}))

	serve(chain, "GET", "/v1/alerts")

	records := parseRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0]["user_id"] != "user-9" {
		t.Errorf("user_id = %v, want user-9", records[0]["user_id"])
	}
	if records[0]["company_id"] != "company-3" {
		t.Errorf("company_id = %v, want company-3", records[0]["company_id"])
	}
}

func TestLogger_RateLimitedFlag(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	chain := logChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := requestctx.FromContext(r.Context())
		state.RateLimit = &requestctx.RateLimitInfo{Limit: 3, Remaining: 0, Denied: true}
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	serve(chain, "POST", "/v1/otp/generate")

	records := parseRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0]["rate_limited"] != true {
		t.Errorf("rate_limited = %v, want true", records[0]["rate_limited"])
	}
	// 4xx responses log at warn level.
	if records[0]["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", records[0]["level"])
	}
}

func TestLogger_ErrorLevelFor5xx(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	chain := logChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	serve(chain, "GET", "/v1/ping")

	records := parseRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0]["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", records[0]["level"])
	}
}
