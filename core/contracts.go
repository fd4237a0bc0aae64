package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// TargetStore is the only read dependency on the webhook registry.
type TargetStore interface {
	ListActive(ctx context.Context, tenantID string) ([]WebhookTarget, error)
}

type TargetResolver interface {
	Resolve(ctx context.Context, tenantID string) ([]WebhookTarget, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// CounterStore backs the breaker's windowed hit counters.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	IsExpired(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// DeliveryBatch is the unit of asynchronous, retryable delivery work.
type DeliveryBatch struct {
	ID        string
	EventType EventType
	TenantID  string
	EntityID  string
	Body      []byte
	Targets   []WebhookTarget
	CreatedAt time.Time
}

type BatchEnqueuer interface {
	EnqueueBatch(ctx context.Context, batch DeliveryBatch) error
}

// BatchResult reports one execution of a delivery batch, one attempt per target.
type BatchResult struct {
	BatchID  string
	Attempts []DeliveryAttempt
}

// Failed returns the attempts that did not succeed.
func (r BatchResult) Failed() []DeliveryAttempt {
	out := []DeliveryAttempt{}
	for _, attempt := range r.Attempts {
		if !attempt.Succeeded() {
			out = append(out, attempt)
		}
	}
	return out
}

type BatchDeliverer interface {
	Deliver(ctx context.Context, batch DeliveryBatch) (BatchResult, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Settlement is how a failed delivery job is handed back to the queue.
type Settlement struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

// DeliveryJobEvent describes one execution of a queued delivery batch.
type DeliveryJobEvent struct {
	JobID     string
	BatchID   string
	EventType string
	TenantID  string
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type DeliveryJobHook interface {
	OnStart(ctx context.Context, event DeliveryJobEvent)
	OnSuccess(ctx context.Context, event DeliveryJobEvent)
	OnFailure(ctx context.Context, event DeliveryJobEvent)
	OnRetry(ctx context.Context, event DeliveryJobEvent)
}
