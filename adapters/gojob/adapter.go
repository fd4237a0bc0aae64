package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDeliverBatch  = "leadhooks.webhook.batch"
	ScriptDeliverBatch = "leadhooks/webhook/batch"
)

// RetryPolicy bounds how often and how late a delivery batch is retried.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// RetryPolicyFromConfig allows the first attempt plus the configured retries.
func RetryPolicyFromConfig(cfg core.DeliveryConfig) RetryPolicy {
	var maxDelay time.Duration
	for _, delay := range cfg.Backoff() {
		if delay > maxDelay {
			maxDelay = delay
		}
	}
	return RetryPolicy{
		MaxAttempts:     cfg.MaxRetries + 1,
		MaxDelay:        maxDelay,
		DeadLetterOnMax: true,
	}
}

// Apply clamps a settlement for the given attempt number. Once the attempt budget
// is spent the batch is dead lettered instead of requeued.
func (p RetryPolicy) Apply(s core.Settlement, attempt int) core.Settlement {
	out := s
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Settle applies the policy and nacks the delivery, returning what was sent.
func Settle(ctx context.Context, delivery queue.Delivery, policy RetryPolicy, s core.Settlement, attempt int) (core.Settlement, error) {
	if delivery == nil {
		return core.Settlement{}, fmt.Errorf("gojob: delivery is required")
	}
	applied := policy.Apply(s, attempt)
	return applied, delivery.Nack(ctx, NackOptions(applied))
}

// NackOptions maps a settlement onto a go-job nack disposition.
func NackOptions(s core.Settlement) queue.NackOptions {
	disposition := queue.NackDispositionFailed
	switch {
	case s.DeadLetter:
		disposition = queue.NackDispositionDeadLetter
	case s.Requeue:
		disposition = queue.NackDispositionRetry
	}
	return queue.NackOptions{
		Disposition: disposition,
		Delay:       s.Delay,
		Reason:      s.Reason,
	}
}

// BatchEnqueuer hands delivery batches to a go-job queue.
type BatchEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewBatchEnqueuer(enqueuer queue.Enqueuer) *BatchEnqueuer {
	return &BatchEnqueuer{enqueuer: enqueuer}
}

func (e *BatchEnqueuer) EnqueueBatch(ctx context.Context, batch core.DeliveryBatch) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: batch enqueuer is not configured")
	}
	msg, err := BatchMessage(batch)
	if err != nil {
		return err
	}
	_, err = e.enqueuer.Enqueue(ctx, msg)
	return err
}

// WorkerHookAdapter exposes a delivery job hook as a go-job worker hook.
type WorkerHookAdapter struct {
	hook core.DeliveryJobHook
}

func NewWorkerHookAdapter(hook core.DeliveryJobHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, jobEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, jobEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, jobEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, jobEvent(event))
}

func jobEvent(event worker.Event) core.DeliveryJobEvent {
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	out := core.DeliveryJobEvent{
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
	if msg == nil {
		return out
	}
	out.JobID = strings.TrimSpace(msg.JobID)
	out.BatchID = stringParam(msg, paramBatchID)
	out.EventType = stringParam(msg, paramEventType)
	out.TenantID = stringParam(msg, paramTenantID)
	if out.BatchID == "" {
		out.BatchID = strings.TrimSpace(msg.IdempotencyKey)
	}
	return out
}

func stringParam(msg *job.ExecutionMessage, key string) string {
	value, _ := msg.Parameters[key].(string)
	return strings.TrimSpace(value)
}

var (
	_ core.BatchEnqueuer = (*BatchEnqueuer)(nil)
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
)
