package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grayledger/pulse/internal/metric"
	"github.com/grayledger/pulse/internal/model"
)

// MetricHandler handles HTTP requests for metric recording and queries.
type MetricHandler struct {
	tracker *metric.Tracker
	logger  *slog.Logger
}

// NewMetricHandler creates a new MetricHandler.
func NewMetricHandler(tracker *metric.Tracker, logger *slog.Logger) *MetricHandler {
	return &MetricHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// recordRequest is the body for POST /v1/metrics.
type recordRequest struct {
	Name  string         `json:"name"`
	Kind  string         `json:"kind"`
	Value float64        `json:"value"`
	Tags  map[string]any `json:"tags,omitempty"`
}

// sampleResponse is the serialized form of a recorded sample.
type sampleResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Value      float64        `json:"value"`
	Tags       map[string]any `json:"tags,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

func toSampleResponse(s *model.MetricSample) sampleResponse {
	return sampleResponse{
		ID:         s.ID,
		Name:       s.Name,
		Kind:       string(s.Kind),
		Value:      s.Value,
		Tags:       s.Tags,
		RecordedAt: s.RecordedAt,
	}
}

// Record handles POST /v1/metrics.
// Recording is best-effort: an invalid sample is a client error, but a
// storage failure still returns 202 because callers must never block on
// instrumentation.
func (h *MetricHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	// Validate up front so client mistakes surface as 400s; the tracker
	// itself swallows errors and cannot report which kind occurred.
	probe := model.MetricSample{
		Name:       req.Name,
		Kind:       model.MetricKind(req.Kind),
		Value:      req.Value,
		Tags:       req.Tags,
		RecordedAt: time.Now(),
	}
	if err := probe.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SAMPLE", err.Error())
		return
	}

	var (
		sample *model.MetricSample
		ok     bool
	)
	switch model.MetricKind(req.Kind) {
	case model.KindCounter:
		sample, ok = h.tracker.TrackCounter(r.Context(), req.Name, req.Value, req.Tags)
	case model.KindGauge:
		sample, ok = h.tracker.TrackGauge(r.Context(), req.Name, req.Value, req.Tags)
	case model.KindTiming:
		sample, ok = h.tracker.TrackTiming(r.Context(), req.Name, req.Value, req.Tags)
	}

	if !ok {
		// Store failure; the write was dropped but callers never block
		// on instrumentation.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	writeJSON(w, http.StatusCreated, toSampleResponse(sample))
}

// Latest handles GET /v1/metrics/{name}/latest.
func (h *MetricHandler) Latest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sample, ok := h.tracker.Latest(r.Context(), name, parseTagFilter(r))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no samples recorded for metric")
		return
	}
	writeJSON(w, http.StatusOK, toSampleResponse(sample))
}

// summaryResponse aggregates a metric over a time range.
type summaryResponse struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
	Sum   float64   `json:"sum"`
	Avg   float64   `json:"avg"`
	Min   *float64  `json:"min,omitempty"`
	Max   *float64  `json:"max,omitempty"`
}

// Summary handles GET /v1/metrics/{name}/summary.
func (h *MetricHandler) Summary(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	start, end, err := parseTimeRange(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "start/end must be RFC 3339 timestamps")
		return
	}

	tags := model.Tags(parseTagFilter(r))
	samples := h.tracker.Range(r.Context(), name, start, end, tags)

	resp := summaryResponse{
		Name:  name,
		Start: start,
		End:   end,
		Count: len(samples),
		Sum:   h.tracker.SumValues(r.Context(), name, start, end, tags),
		Avg:   h.tracker.AvgValues(r.Context(), name, start, end, tags),
	}
	if v, ok := h.tracker.MinValues(r.Context(), name, start, end, tags); ok {
		resp.Min = &v
	}
	if v, ok := h.tracker.MaxValues(r.Context(), name, start, end, tags); ok {
		resp.Max = &v
	}

	writeJSON(w, http.StatusOK, resp)
}

// Percentile handles GET /v1/metrics/{name}/percentile?p=95.
func (h *MetricHandler) Percentile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := strconv.ParseFloat(r.URL.Query().Get("p"), 64)
	if err != nil || p < 0 || p > 100 {
		writeError(w, http.StatusBadRequest, "INVALID_PERCENTILE", "p must be a number between 0 and 100")
		return
	}
	start, end, err := parseTimeRange(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "start/end must be RFC 3339 timestamps")
		return
	}

	v, ok := h.tracker.Percentile(r.Context(), name, p, start, end, parseTagFilter(r))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no samples in range")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":       name,
		"percentile": p,
		"value":      v,
	})
}

// ByDay handles GET /v1/metrics/{name}/by-day?stat=count|sum.
func (h *MetricHandler) ByDay(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	start, end, err := parseTimeRange(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "start/end must be RFC 3339 timestamps")
		return
	}

	tags := model.Tags(parseTagFilter(r))
	stat := r.URL.Query().Get("stat")
	switch stat {
	case "", "count":
		writeJSON(w, http.StatusOK, map[string]any{
			"name": name,
			"stat": "count",
			"days": h.tracker.CountByDay(r.Context(), name, start, end, tags),
		})
	case "sum":
		writeJSON(w, http.StatusOK, map[string]any{
			"name": name,
			"stat": "sum",
			"days": h.tracker.SumByDay(r.Context(), name, start, end, tags),
		})
	default:
		writeError(w, http.StatusBadRequest, "INVALID_STAT", "stat must be count or sum")
	}
}
