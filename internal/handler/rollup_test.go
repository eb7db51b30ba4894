package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grayledger/pulse/internal/metric"
	"github.com/grayledger/pulse/internal/model"
	"github.com/grayledger/pulse/internal/rollup"
)

func newRollupRouter(t *testing.T, now time.Time) (*chi.Mux, *metric.MemoryStore, *rollup.Engine) {
	t.Helper()

	samples := metric.NewMemoryStore(time.UTC)
	engine := rollup.NewEngine(samples, rollup.NewMemoryStore(), time.UTC, testLogger())
	engine.SetClock(func() time.Time { return now })
	h := NewRollupHandler(engine, testLogger())

	r := chi.NewRouter()
	r.Post("/v1/rollups/run", h.Run)
	r.Get("/v1/rollups/{name}/latest", h.Latest)
	r.Get("/v1/rollups/{name}/trend", h.Trend)
	r.Get("/v1/rollups/{name}/average", h.Average)
	return r, samples, engine
}

func TestRollupHandler_RunAndLatest(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	r, samples, _ := newRollupRouter(t, now)

	for _, v := range []float64{10, 20, 30} {
		seedSample(t, samples, "entries.created", model.KindCounter, v, now.Add(-time.Minute))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/rollups/run?interval=hourly", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/rollups/entries.created/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("latest status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp rollupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Name != "entries.created" || resp.Interval != "hourly" {
		t.Errorf("name/interval = %q/%q", resp.Name, resp.Interval)
	}
	if resp.Statistics["sum"] != 60 || resp.SampleCount != 3 {
		t.Errorf("sum/count = %g/%d, want 60/3", resp.Statistics["sum"], resp.SampleCount)
	}
	if resp.Summary != "Total: 60, Count: 3" {
		t.Errorf("summary = %q", resp.Summary)
	}
	if resp.PercentChange != nil {
		t.Error("percent_change should be absent without a predecessor")
	}
}

func TestRollupHandler_Latest_NotFound(t *testing.T) {
	t.Parallel()

	r, _, _ := newRollupRouter(t, time.Now())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/rollups/nothing/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRollupHandler_InvalidInterval(t *testing.T) {
	t.Parallel()

	r, _, _ := newRollupRouter(t, time.Now())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/rollups/run?interval=monthly", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRollupHandler_Trend(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	r, samples, engine := newRollupRouter(t, now)

	ctx := context.Background()
	for day := 0; day < 3; day++ {
		at := now.AddDate(0, 0, -day)
		seedSample(t, samples, "entries.created", model.KindCounter, float64(100+day), at)
		engine.SetClock(func() time.Time { return at })
		if _, err := engine.RunRollup(ctx, model.IntervalDaily); err != nil {
			t.Fatalf("RunRollup: %v", err)
		}
	}
	engine.SetClock(func() time.Time { return now })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/rollups/entries.created/trend?interval=daily&days=7", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Days    int              `json:"days"`
		Rollups []rollupResponse `json:"rollups"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Days != 7 {
		t.Errorf("days = %d, want 7", resp.Days)
	}
	if len(resp.Rollups) != 3 {
		t.Errorf("rollups = %d, want 3", len(resp.Rollups))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/rollups/entries.created/trend?days=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("days=0 status = %d, want 400", rec.Code)
	}
}

func TestRollupHandler_Average(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	r, samples, _ := newRollupRouter(t, now)

	for _, v := range []float64{10, 20, 30} {
		seedSample(t, samples, "entries.created", model.KindCounter, v, now.Add(-time.Minute))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/rollups/run?interval=hourly", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/rollups/entries.created/average?stat=sum", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Average float64 `json:"average"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Average != 60 {
		t.Errorf("average = %g, want 60", resp.Average)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/rollups/entries.created/average", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing stat status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/rollups/entries.created/average?stat=p95", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing stat field status = %d, want 404", rec.Code)
	}
}
