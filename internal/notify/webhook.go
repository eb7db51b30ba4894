// Package notify implements the alert notification sink.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
)

// Payload is the structured alert notification body.
type Payload struct {
	MetricName         string    `json:"metric_name"`
	CurrentValue       float64   `json:"current_value"`
	Threshold          float64   `json:"threshold"`
	AlertType          string    `json:"alert_type"`
	FormattedValue     string    `json:"formatted_value"`
	FormattedThreshold string    `json:"formatted_threshold"`
	Subject            string    `json:"subject"`
	Timestamp          time.Time `json:"timestamp"`
}

// WebhookSink delivers alert payloads to an HTTP endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookSink creates a sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url: url,
		client: &http.Client{
			Timeout: ClientTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
			// Don't follow redirects - the sink destination is fixed
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

// Notify posts the formatted alert payload. A non-2xx response is an error.
func (s *WebhookSink) Notify(ctx context.Context, metricName string, currentValue, threshold float64, alertType string) error {
	payload := Payload{
		MetricName:         metricName,
		CurrentValue:       currentValue,
		Threshold:          threshold,
		AlertType:          alertType,
		FormattedValue:     FormatValue(currentValue, metricName),
		FormattedThreshold: FormatValue(threshold, metricName),
		Subject:            fmt.Sprintf("ALERT: %s exceeded critical threshold", metricName),
		Timestamp:          s.now(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pulse-Alerts/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert sink returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatValue renders a metric value for humans: percentages for
// rate-style metrics, a failures-per-hour count for failure metrics.
func FormatValue(value float64, metricName string) string {
	switch metricName {
	case "error_rate", "cache_hit_rate":
		return fmt.Sprintf("%.2f%%", value*100)
	case "job_failures":
		return fmt.Sprintf("%d failures/hr", int(value))
	default:
		return fmt.Sprintf("%g", value)
	}
}
