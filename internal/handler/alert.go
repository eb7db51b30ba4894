package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/grayledger/pulse/internal/alert"
	"github.com/grayledger/pulse/internal/model"
)

// ThresholdChecker collects current metric values and evaluates them
// against the alert rules.
type ThresholdChecker interface {
	Run(ctx context.Context) alert.Results
}

// AlertHandler handles HTTP requests for alert history and checks.
type AlertHandler struct {
	engine  *alert.Engine
	checker ThresholdChecker
	logger  *slog.Logger
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(engine *alert.Engine, checker ThresholdChecker, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		engine:  engine,
		checker: checker,
		logger:  logger,
	}
}

// alertResponse is the serialized form of an alert.
type alertResponse struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	MetricName   string     `json:"metric_name"`
	CurrentValue float64    `json:"current_value"`
	Threshold    float64    `json:"threshold"`
	TriggeredAt  time.Time  `json:"triggered_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	Description  string     `json:"description,omitempty"`
	Active       bool       `json:"active"`
}

func toAlertResponse(a *model.Alert) alertResponse {
	return alertResponse{
		ID:           a.ID,
		Type:         a.Type,
		MetricName:   a.MetricName,
		CurrentValue: a.CurrentValue,
		Threshold:    a.Threshold,
		TriggeredAt:  a.TriggeredAt,
		ResolvedAt:   a.ResolvedAt,
		Description:  a.Description,
		Active:       a.Active(),
	}
}

// List handles GET /v1/alerts?limit=20.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	alerts, err := h.engine.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("alert list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "alert lookup failed")
		return
	}

	items := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		items = append(items, toAlertResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": items})
}

// checkSummary reports one evaluated metric in the check response.
type checkSummary struct {
	Status     string  `json:"status"`
	AlertType  string  `json:"alert_type"`
	MetricName string  `json:"metric_name"`
	Value      float64 `json:"value"`
}

// Check handles POST /v1/alerts/check. It runs the full threshold sweep
// immediately instead of waiting for the collection schedule.
func (h *AlertHandler) Check(w http.ResponseWriter, r *http.Request) {
	results := h.checker.Run(r.Context())

	summarize := func(rs []alert.CheckResult) []checkSummary {
		out := make([]checkSummary, 0, len(rs))
		for _, res := range rs {
			out = append(out, checkSummary{
				Status:     string(res.Status),
				AlertType:  res.AlertType,
				MetricName: res.MetricName,
				Value:      res.Value,
			})
		}
		return out
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"triggered":    summarize(results.Triggered),
		"rate_limited": summarize(results.RateLimited),
		"resolved":     summarize(results.Resolved),
	})
}
