package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
)

const defaultHealthTimeout = 3 * time.Second

type HealthStatus string

const (
	HealthStatusActive   HealthStatus = "active"
	HealthStatusInactive HealthStatus = "inactive"
)

type HealthReport struct {
	URL        string       `json:"url"`
	Status     HealthStatus `json:"status"`
	StatusCode int          `json:"code,omitempty"`
	LatencyMS  *float64     `json:"latency_ms"`
	Message    string       `json:"message,omitempty"`
}

type HealthChecker struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	now       func() time.Time
}

func NewHealthChecker(client *http.Client, userAgent string, timeout time.Duration) *HealthChecker {
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = core.DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	return &HealthChecker{client: client, userAgent: userAgent, timeout: timeout, now: time.Now}
}

func (h *HealthChecker) Timeout() time.Duration {
	return h.timeout
}

// Check probes url with OPTIONS so the endpoint's workflow is never triggered.
// Only 200 and 204 count as active.
func (h *HealthChecker) Check(ctx context.Context, rawURL string, secret string) (HealthReport, error) {
	target := core.WebhookTarget{TenantID: "probe", URL: rawURL}
	if err := target.Validate(); err != nil {
		return HealthReport{}, err
	}
	report := HealthReport{URL: strings.TrimSpace(rawURL), Status: HealthStatusInactive}

	requestCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodOptions, report.URL, nil)
	if err != nil {
		return HealthReport{}, fmt.Errorf("webhooks: build health request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	if secret != "" {
		req.Header.Set("Authorization", secret)
	}

	startedAt := h.now()
	resp, err := h.client.Do(req)
	if err != nil {
		report.Message = "Unreachable"
		return report, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()

	latency := float64(h.now().Sub(startedAt).Microseconds()) / 1000
	report.LatencyMS = &latency
	report.StatusCode = resp.StatusCode
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		report.Status = HealthStatusActive
	}
	return report, nil
}
