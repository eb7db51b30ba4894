package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grayledger/pulse/internal/model"
	"github.com/grayledger/pulse/internal/rollup"
)

// RollupHandler handles HTTP requests for rollup queries and triggers.
type RollupHandler struct {
	engine *rollup.Engine
	logger *slog.Logger
}

// NewRollupHandler creates a new RollupHandler.
func NewRollupHandler(engine *rollup.Engine, logger *slog.Logger) *RollupHandler {
	return &RollupHandler{
		engine: engine,
		logger: logger,
	}
}

// rollupResponse is the serialized form of a rollup.
type rollupResponse struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Kind          string             `json:"kind"`
	Interval      string             `json:"interval"`
	AggregatedAt  time.Time          `json:"aggregated_at"`
	Statistics    map[string]float64 `json:"statistics"`
	SampleCount   int                `json:"sample_count"`
	Summary       string             `json:"summary"`
	PercentChange *float64           `json:"percent_change,omitempty"`
}

func toRollupResponse(r *model.MetricRollup) rollupResponse {
	return rollupResponse{
		ID:           r.ID,
		Name:         r.Name,
		Kind:         string(r.Kind),
		Interval:     string(r.Interval),
		AggregatedAt: r.AggregatedAt,
		Statistics:   r.Statistics,
		SampleCount:  r.SampleCount,
		Summary:      r.Summary(),
	}
}

// parseInterval reads the interval query param, defaulting to hourly.
func parseInterval(r *http.Request) (model.RollupInterval, bool) {
	raw := r.URL.Query().Get("interval")
	if raw == "" {
		return model.IntervalHourly, true
	}
	interval := model.RollupInterval(raw)
	if !model.ValidInterval(interval) {
		return "", false
	}
	return interval, true
}

// Latest handles GET /v1/rollups/{name}/latest?interval=hourly.
// The response includes the percent change against the previous period
// when a predecessor with a nonzero comparable value exists.
func (h *RollupHandler) Latest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	interval, ok := parseInterval(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_INTERVAL", "interval must be hourly, daily, or weekly")
		return
	}

	latest, found, err := h.engine.LatestFor(r.Context(), name, interval)
	if err != nil {
		h.logger.Error("rollup lookup failed", "metric", name, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "rollup lookup failed")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no rollups aggregated for metric")
		return
	}

	resp := toRollupResponse(latest)
	if change, ok, err := h.engine.PercentChangeFromPrevious(r.Context(), latest); err == nil && ok {
		resp.PercentChange = &change
	}

	writeJSON(w, http.StatusOK, resp)
}

// Trend handles GET /v1/rollups/{name}/trend?interval=daily&days=7.
func (h *RollupHandler) Trend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	interval, ok := parseInterval(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_INTERVAL", "interval must be hourly, daily, or weekly")
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 90 {
			writeError(w, http.StatusBadRequest, "INVALID_DAYS", "days must be between 1 and 90")
			return
		}
		days = n
	}

	rollups, err := h.engine.TrendFor(r.Context(), name, interval, days)
	if err != nil {
		h.logger.Error("rollup trend failed", "metric", name, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "rollup trend failed")
		return
	}

	points := make([]rollupResponse, 0, len(rollups))
	for _, r := range rollups {
		points = append(points, toRollupResponse(r))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":     name,
		"interval": string(interval),
		"days":     days,
		"rollups":  points,
	})
}

// Average handles GET /v1/rollups/{name}/average?stat=p95&interval=hourly&lookback=24.
func (h *RollupHandler) Average(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stat := r.URL.Query().Get("stat")
	if stat == "" {
		writeError(w, http.StatusBadRequest, "INVALID_STAT", "stat is required")
		return
	}
	interval, ok := parseInterval(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_INTERVAL", "interval must be hourly, daily, or weekly")
		return
	}

	lookback := 24
	if raw := r.URL.Query().Get("lookback"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "INVALID_LOOKBACK", "lookback must be between 1 and 1000")
			return
		}
		lookback = n
	}

	avg, found, err := h.engine.AverageStatistic(r.Context(), name, stat, interval, lookback)
	if err != nil {
		h.logger.Error("rollup average failed", "metric", name, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "rollup average failed")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no rollups carry that statistic")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":     name,
		"stat":     stat,
		"interval": string(interval),
		"lookback": lookback,
		"average":  avg,
	})
}

// Run handles POST /v1/rollups/run?interval=hourly. It aggregates the
// current period immediately instead of waiting for the scheduler.
func (h *RollupHandler) Run(w http.ResponseWriter, r *http.Request) {
	interval, ok := parseInterval(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_INTERVAL", "interval must be hourly, daily, or weekly")
		return
	}

	written, err := h.engine.RunRollup(r.Context(), interval)
	if err != nil {
		h.logger.Error("manual rollup failed", "interval", string(interval), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "rollup run failed")
		return
	}

	h.logger.Info("manual rollup completed",
		"interval", string(interval),
		"written", written,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"interval": string(interval),
		"written":  written,
	})
}
