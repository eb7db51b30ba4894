package handler

import (
	"log/slog"
	"net/http"

	"github.com/grayledger/pulse/internal/metric"
	"github.com/grayledger/pulse/internal/model"
	"github.com/grayledger/pulse/internal/requestctx"
)

// DemoHandler serves the throttled sample endpoints. Each endpoint
// records a request counter so throttle behavior shows up in the
// metrics it protects.
type DemoHandler struct {
	tracker *metric.Tracker
	logger  *slog.Logger
}

// NewDemoHandler creates a new DemoHandler.
func NewDemoHandler(tracker *metric.Tracker, logger *slog.Logger) *DemoHandler {
	return &DemoHandler{
		tracker: tracker,
		logger:  logger,
	}
}

func (h *DemoHandler) accept(w http.ResponseWriter, r *http.Request, counter string) {
	tags := model.Tags{"path": r.URL.Path}
	if state := requestctx.FromContext(r.Context()); state != nil && state.CompanyID != "" {
		tags["company_id"] = state.CompanyID
	}
	h.tracker.TrackCounter(r.Context(), counter, 1, tags)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GenerateOTP handles POST /v1/otp/generate.
func (h *DemoHandler) GenerateOTP(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, "otp.generate.requests")
}

// ValidateOTP handles POST /v1/otp/validate.
func (h *DemoHandler) ValidateOTP(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, "otp.validate.requests")
}

// UploadReceipt handles POST /v1/receipts.
func (h *DemoHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, "receipts.upload.requests")
}

// Categorize handles POST /v1/categorize.
func (h *DemoHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, "categorize.requests")
}

// CreateEntry handles POST /v1/entries.
func (h *DemoHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, "entries.create.requests")
}

// Ping handles GET /v1/ping, the general API throttle target.
func (h *DemoHandler) Ping(w http.ResponseWriter, r *http.Request) {
	h.tracker.TrackCounter(r.Context(), "api.requests", 1, model.Tags{"path": r.URL.Path})
	writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
}
