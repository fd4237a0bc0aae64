package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-leadhooks/core"
	"golang.org/x/sync/errgroup"
)

const maxDrainBytes = 64 << 10

// DeliveryError reports the targets of a batch that did not accept the event.
type DeliveryError struct {
	BatchID   string
	EventType core.EventType
	Failed    []core.DeliveryAttempt
	Total     int
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, attempt := range e.Failed {
		detail := string(attempt.Outcome)
		if attempt.StatusCode > 0 {
			detail += " " + strconv.Itoa(attempt.StatusCode)
		}
		parts = append(parts, attempt.TargetID+"("+detail+")")
	}
	return fmt.Sprintf(
		"webhooks: batch %s %s failed for %d of %d targets: %s",
		e.BatchID,
		e.EventType,
		len(e.Failed),
		e.Total,
		strings.Join(parts, ", "),
	)
}

func (e *DeliveryError) ToServiceError() *goerrors.Error {
	targets := make([]string, 0, len(e.Failed))
	for _, attempt := range e.Failed {
		targets = append(targets, attempt.TargetID)
	}
	return goerrors.New(e.Error(), goerrors.CategoryOperation).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorDelivery).
		WithMetadata(map[string]any{
			"batch_id":       e.BatchID,
			"event_type":     string(e.EventType),
			"failed_targets": targets,
			"total_targets":  e.Total,
		})
}

type DelivererOptions struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
	Observer  core.Observer
	Now       func() time.Time
}

// BatchDeliverer posts one batch body to every target concurrently.
type BatchDeliverer struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	observer  core.Observer
	now       func() time.Time
}

func NewBatchDeliverer(opts DelivererOptions) *BatchDeliverer {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = core.DefaultUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = core.DefaultConfig().Delivery.Timeout()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &BatchDeliverer{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		observer:  opts.Observer,
		now:       now,
	}
}

// Deliver sends the batch to all targets and waits for every one of them.
// A non-nil error means at least one target failed and the batch should be retried.
func (d *BatchDeliverer) Deliver(ctx context.Context, batch core.DeliveryBatch) (core.BatchResult, error) {
	result := core.BatchResult{BatchID: batch.ID}
	if len(batch.Targets) == 0 {
		return result, nil
	}
	if len(batch.Body) == 0 {
		return result, fmt.Errorf("webhooks: batch %s has no body", batch.ID)
	}

	attempts := make([]core.DeliveryAttempt, len(batch.Targets))
	var group errgroup.Group
	group.SetLimit(len(batch.Targets))
	for i, target := range batch.Targets {
		group.Go(func() error {
			attempts[i] = d.post(ctx, batch, target)
			return nil
		})
	}
	_ = group.Wait()
	result.Attempts = attempts

	failed := result.Failed()
	if len(failed) == 0 {
		d.observer.Info(ctx, "webhook batch delivered", map[string]any{
			"batch_id":   batch.ID,
			"event_type": string(batch.EventType),
			"tenant_id":  batch.TenantID,
			"targets":    len(attempts),
		})
		return result, nil
	}
	return result, &DeliveryError{
		BatchID:   batch.ID,
		EventType: batch.EventType,
		Failed:    failed,
		Total:     len(attempts),
	}
}

func (d *BatchDeliverer) post(ctx context.Context, batch core.DeliveryBatch, target core.WebhookTarget) core.DeliveryAttempt {
	attempt := core.DeliveryAttempt{
		TargetID: target.ID,
		URL:      target.URL,
	}
	if target.Signed() {
		attempt.Signature = Sign(target.Secret, batch.Body)
	}

	requestCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	startedAt := d.now()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, target.URL, bytes.NewReader(batch.Body))
	if err != nil {
		attempt.Outcome = core.DeliveryOutcomeFailed
		attempt.Err = fmt.Errorf("webhooks: build request: %w", err)
		d.record(ctx, batch, attempt)
		return attempt
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	if attempt.Signature != "" {
		req.Header.Set(SignatureHeader, attempt.Signature)
	}

	resp, err := d.client.Do(req)
	attempt.Latency = d.now().Sub(startedAt)
	if err != nil {
		attempt.Outcome = DeliveryOutcomeFor(0, err)
		attempt.Err = err
		d.record(ctx, batch, attempt)
		return attempt
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	attempt.Outcome = DeliveryOutcomeFor(resp.StatusCode, nil)
	if !attempt.Succeeded() {
		attempt.Err = fmt.Errorf("webhooks: target %s responded %d", target.ID, resp.StatusCode)
	}
	d.record(ctx, batch, attempt)
	return attempt
}

func (d *BatchDeliverer) record(ctx context.Context, batch core.DeliveryBatch, attempt core.DeliveryAttempt) {
	tags := map[string]string{
		"event_type": string(batch.EventType),
		"outcome":    string(attempt.Outcome),
	}
	d.observer.Count(ctx, core.MetricDeliveryTotal, 1, tags)
	d.observer.Observe(ctx, core.MetricDeliveryLatency, float64(attempt.Latency.Milliseconds()), tags)

	fields := map[string]any{
		"batch_id":    batch.ID,
		"event_type":  string(batch.EventType),
		"tenant_id":   batch.TenantID,
		"target_id":   attempt.TargetID,
		"status_code": attempt.StatusCode,
		"outcome":     string(attempt.Outcome),
		"latency_ms":  attempt.Latency.Milliseconds(),
	}
	if attempt.Succeeded() {
		d.observer.Debug(ctx, "webhook attempt succeeded", fields)
		return
	}
	if attempt.Err != nil {
		fields["error"] = attempt.Err.Error()
	}
	d.observer.Warn(ctx, "webhook attempt failed", fields)
}

// DeliveryOutcomeFor classifies a response status or transport error.
func DeliveryOutcomeFor(statusCode int, err error) core.DeliveryOutcome {
	if err != nil {
		if isTimeout(err) {
			return core.DeliveryOutcomeTimedOut
		}
		return core.DeliveryOutcomeFailed
	}
	if statusCode >= 200 && statusCode < 300 {
		return core.DeliveryOutcomeSuccess
	}
	return core.DeliveryOutcomeFailed
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ core.BatchDeliverer = (*BatchDeliverer)(nil)
