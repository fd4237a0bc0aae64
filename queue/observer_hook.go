package queue

import (
	"context"

	"github.com/goliatone/go-leadhooks/core"
)

// ObserverHook reports job lifecycle events through logs and metrics.
type ObserverHook struct {
	observer core.Observer
}

func NewObserverHook(observer core.Observer) *ObserverHook {
	return &ObserverHook{observer: observer}
}

func (h *ObserverHook) OnStart(ctx context.Context, event core.DeliveryJobEvent) {
	h.observer.Debug(ctx, "job started", eventFields(event))
}

func (h *ObserverHook) OnSuccess(ctx context.Context, event core.DeliveryJobEvent) {
	h.observer.Count(ctx, core.MetricJobTotal, 1, eventTags(event, "success"))
	h.observer.Debug(ctx, "job succeeded", eventFields(event))
}

func (h *ObserverHook) OnRetry(ctx context.Context, event core.DeliveryJobEvent) {
	fields := eventFields(event)
	fields["retry_in_ms"] = event.Delay.Milliseconds()
	h.observer.Count(ctx, core.MetricJobTotal, 1, eventTags(event, "retry"))
	h.observer.Warn(ctx, "job scheduled for retry", fields)
}

func (h *ObserverHook) OnFailure(ctx context.Context, event core.DeliveryJobEvent) {
	h.observer.Count(ctx, core.MetricJobTotal, 1, eventTags(event, "dead_letter"))
	h.observer.Error(ctx, "job permanently failed", eventFields(event))
}

func eventFields(event core.DeliveryJobEvent) map[string]any {
	fields := map[string]any{
		"attempt":     event.Attempt,
		"duration_ms": event.Duration.Milliseconds(),
		"job_id":      event.JobID,
	}
	if event.BatchID != "" {
		fields["batch_id"] = event.BatchID
	}
	if event.EventType != "" {
		fields["event_type"] = event.EventType
	}
	if event.TenantID != "" {
		fields["tenant_id"] = event.TenantID
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

func eventTags(event core.DeliveryJobEvent, outcome string) map[string]string {
	tags := map[string]string{"outcome": outcome, "job_id": event.JobID}
	if event.EventType != "" {
		tags["event_type"] = event.EventType
	}
	return tags
}

var _ core.DeliveryJobHook = (*ObserverHook)(nil)
