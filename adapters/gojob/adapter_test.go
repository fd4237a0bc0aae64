package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-leadhooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func testBatch() core.DeliveryBatch {
	return core.DeliveryBatch{
		ID:        "batch_1",
		EventType: core.EventLeadUpdatedStatus,
		TenantID:  "tenant_1",
		EntityID:  "lead_1",
		Body:      []byte(`{"event":"lead.updated.status","timestamp":"2026-03-01T09:30:00+00:00","lead":{"id":"lead_1"}}`),
		Targets: []core.WebhookTarget{
			{ID: "wh_1", TenantID: "tenant_1", URL: "https://a.example/hook", Secret: "s1"},
			{ID: "wh_2", TenantID: "tenant_1", URL: "https://b.example/hook"},
		},
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestBatchEnqueuer_EncodesBatch(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	if err := NewBatchEnqueuer(enqueuer).EnqueueBatch(context.Background(), testBatch()); err != nil {
		t.Fatalf("enqueue batch: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDDeliverBatch {
		t.Fatalf("expected batch job message, got %+v", enqueuer.last)
	}
	if enqueuer.last.IdempotencyKey != "batch_1" {
		t.Fatalf("expected batch id as idempotency key")
	}
	if enqueuer.last.Parameters["event_type"] != "lead.updated.status" {
		t.Fatalf("expected inspectable event type parameter")
	}

	decoded, err := BatchFromMessage(enqueuer.last)
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	original := testBatch()
	if string(decoded.Body) != string(original.Body) {
		t.Fatalf("expected verbatim body bytes")
	}
	if len(decoded.Targets) != 2 || decoded.Targets[0].Secret != "s1" || decoded.Targets[1].URL != "https://b.example/hook" {
		t.Fatalf("unexpected decoded targets %+v", decoded.Targets)
	}
	if decoded.EventType != core.EventLeadUpdatedStatus || !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("unexpected decoded batch %+v", decoded)
	}
}

func TestBatchEnqueuer_RejectsEmptyBatch(t *testing.T) {
	batch := testBatch()
	batch.Targets = nil
	if err := NewBatchEnqueuer(&stubQueueEnqueuer{}).EnqueueBatch(context.Background(), batch); err == nil {
		t.Fatalf("expected empty batch to be rejected")
	}
}

type stubDeliverer struct {
	got core.DeliveryBatch
	err error
}

func (s *stubDeliverer) Deliver(_ context.Context, batch core.DeliveryBatch) (core.BatchResult, error) {
	s.got = batch
	return core.BatchResult{BatchID: batch.ID}, s.err
}

func TestBatchHandler(t *testing.T) {
	msg, err := BatchMessage(testBatch())
	if err != nil {
		t.Fatalf("batch message: %v", err)
	}
	deliverer := &stubDeliverer{}
	handler := NewBatchHandler(deliverer)
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if deliverer.got.ID != "batch_1" {
		t.Fatalf("expected deliverer to receive the batch")
	}

	deliverer.err = errors.New("target down")
	if err := handler(context.Background(), msg); err == nil || errors.Is(err, core.ErrPermanentJob) {
		t.Fatalf("expected retryable delivery error, got %v", err)
	}

	err = handler(context.Background(), &job.ExecutionMessage{JobID: JobIDDeliverBatch})
	if !errors.Is(err, core.ErrPermanentJob) {
		t.Fatalf("expected malformed batch to be permanent, got %v", err)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := RetryPolicyFromConfig(core.DefaultConfig().Delivery)
	if policy.MaxAttempts != 4 {
		t.Fatalf("expected first attempt plus three retries, got %d", policy.MaxAttempts)
	}
	if policy.MaxDelay != 120*time.Second || !policy.DeadLetterOnMax {
		t.Fatalf("unexpected policy %+v", policy)
	}
}

func TestRetryPolicyApply(t *testing.T) {
	policy := RetryPolicyFromConfig(core.DefaultConfig().Delivery)
	tests := []struct {
		name       string
		in         core.Settlement
		attempt    int
		delay      time.Duration
		requeue    bool
		deadLetter bool
	}{
		{name: "bounded delay", in: core.Settlement{Delay: 10 * time.Minute, Requeue: true}, attempt: 1, delay: 120 * time.Second, requeue: true},
		{name: "negative delay", in: core.Settlement{Delay: -time.Second, Requeue: true}, attempt: 1, requeue: true},
		{name: "defaults to requeue", in: core.Settlement{}, attempt: 2, requeue: true},
		{name: "explicit dead letter", in: core.Settlement{Requeue: true, DeadLetter: true}, attempt: 1, deadLetter: true},
		{name: "attempts exhausted", in: core.Settlement{Delay: time.Second, Requeue: true}, attempt: 4, delay: time.Second, deadLetter: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Apply(tt.in, tt.attempt)
			if got.Delay != tt.delay || got.Requeue != tt.requeue || got.DeadLetter != tt.deadLetter {
				t.Fatalf("unexpected settlement %+v", got)
			}
		})
	}
}

func TestSettle_NacksWithAppliedPolicy(t *testing.T) {
	ctx := context.Background()
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDDeliverBatch}}
	policy := RetryPolicyFromConfig(core.DefaultConfig().Delivery)

	settled, err := Settle(ctx, delivery, policy, core.Settlement{Delay: 10 * time.Minute, Requeue: true, Reason: " transient "}, 1)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if delivery.nackOpts.Delay != 120*time.Second || delivery.nackOpts.Disposition != queue.NackDispositionRetry || delivery.nackOpts.Reason != "transient" {
		t.Fatalf("unexpected nack options %+v", delivery.nackOpts)
	}
	if settled.Delay != delivery.nackOpts.Delay {
		t.Fatalf("expected returned settlement to match nack")
	}

	settled, err = Settle(ctx, delivery, policy, core.Settlement{Requeue: true}, 4)
	if err != nil {
		t.Fatalf("settle exhausted: %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter || !settled.DeadLetter {
		t.Fatalf("expected dead letter once attempts are exhausted, got %+v", delivery.nackOpts)
	}

	if _, err := Settle(ctx, nil, policy, core.Settlement{}, 1); err == nil {
		t.Fatalf("expected nil delivery error")
	}
}

func TestNackOptionsDispositions(t *testing.T) {
	tests := []struct {
		name string
		in   core.Settlement
		want queue.NackDisposition
	}{
		{name: "retry", in: core.Settlement{Requeue: true, Delay: time.Second}, want: queue.NackDispositionRetry},
		{name: "dead letter wins", in: core.Settlement{Requeue: true, DeadLetter: true}, want: queue.NackDispositionDeadLetter},
		{name: "neither", in: core.Settlement{}, want: queue.NackDispositionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NackOptions(tt.in)
			if got.Disposition != tt.want || got.Delay != tt.in.Delay {
				t.Fatalf("unexpected nack options %+v", got)
			}
		})
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	msg, err := BatchMessage(testBatch())
	if err != nil {
		t.Fatalf("batch message: %v", err)
	}
	hook := &capturingHook{}
	adapter := NewWorkerHookAdapter(hook)
	startedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	adapter.OnRetry(context.Background(), worker.Event{
		Delivery:  &stubQueueDelivery{msg: msg},
		Attempt:   2,
		Delay:     30 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: startedAt,
		Duration:  250 * time.Millisecond,
	})

	got := hook.last
	if got.JobID != JobIDDeliverBatch || got.BatchID != "batch_1" {
		t.Fatalf("unexpected identifiers %+v", got)
	}
	if got.EventType != "lead.updated.status" || got.TenantID != "tenant_1" {
		t.Fatalf("expected batch parameters, got %+v", got)
	}
	if got.Attempt != 2 || got.Delay != 30*time.Second || got.Duration != 250*time.Millisecond || !got.StartedAt.Equal(startedAt) {
		t.Fatalf("unexpected timing %+v", got)
	}
	if got.Err == nil || got.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}

	adapter.OnRetry(context.Background(), worker.Event{Message: &job.ExecutionMessage{JobID: "other", IdempotencyKey: "key_1"}})
	if hook.last.BatchID != "key_1" {
		t.Fatalf("expected idempotency key fallback, got %q", hook.last.BatchID)
	}
	NewWorkerHookAdapter(nil).OnStart(context.Background(), worker.Event{})
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{DispatchID: msg.IdempotencyKey}, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	last core.DeliveryJobEvent
}

func (h *capturingHook) OnStart(context.Context, core.DeliveryJobEvent)   {}
func (h *capturingHook) OnSuccess(context.Context, core.DeliveryJobEvent) {}
func (h *capturingHook) OnFailure(context.Context, core.DeliveryJobEvent) {}
func (h *capturingHook) OnRetry(_ context.Context, event core.DeliveryJobEvent) {
	h.last = event
}
