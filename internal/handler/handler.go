// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Handler wraps the plain endpoints that need no dependencies.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Hello is a simple info endpoint.
// GET /
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"message": "Pulse metrics API",
		"version": "0.1.0",
	}
	writeJSON(w, http.StatusOK, response)
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		_ = err
	}
}

// errorResponse is the shared error body shape.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// parseTimeRange reads optional start/end query params (RFC 3339).
// Defaults to the last hour ending now.
func parseTimeRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	start := now.Add(-time.Hour)
	end := now

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	return start, end, nil
}

// parseTagFilter collects query params of the form tag.<key>=<value>
// into a tag filter. Values stay strings; numeric comparison is handled
// by the store layer.
func parseTagFilter(r *http.Request) map[string]any {
	var filter map[string]any
	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, "tag.") || len(values) == 0 {
			continue
		}
		if filter == nil {
			filter = make(map[string]any)
		}
		filter[strings.TrimPrefix(key, "tag.")] = values[0]
	}
	return filter
}
