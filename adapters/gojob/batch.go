package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"

	job "github.com/goliatone/go-job"
)

const (
	paramBatchID   = "batch_id"
	paramEventType = "event_type"
	paramTenantID  = "tenant_id"
	paramEntityID  = "entity_id"
	paramBatch     = "batch"
)

type batchTarget struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

type batchPayload struct {
	ID        string        `json:"id"`
	EventType string        `json:"event_type"`
	TenantID  string        `json:"tenant_id"`
	EntityID  string        `json:"entity_id"`
	Body      string        `json:"body"`
	Targets   []batchTarget `json:"targets"`
	CreatedAt time.Time     `json:"created_at"`
}

// BatchMessage encodes a batch as a go-job execution message.
// The envelope body travels verbatim so retries post identical bytes.
func BatchMessage(batch core.DeliveryBatch) (*job.ExecutionMessage, error) {
	if strings.TrimSpace(batch.ID) == "" {
		return nil, fmt.Errorf("gojob: batch id is required")
	}
	if len(batch.Targets) == 0 {
		return nil, fmt.Errorf("gojob: batch %s has no targets", batch.ID)
	}
	payload := batchPayload{
		ID:        batch.ID,
		EventType: batch.EventType.String(),
		TenantID:  batch.TenantID,
		EntityID:  batch.EntityID,
		Body:      string(batch.Body),
		Targets:   make([]batchTarget, 0, len(batch.Targets)),
		CreatedAt: batch.CreatedAt.UTC(),
	}
	for _, target := range batch.Targets {
		payload.Targets = append(payload.Targets, batchTarget{
			ID:     target.ID,
			URL:    target.URL,
			Secret: target.Secret,
		})
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gojob: encode batch: %w", err)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDDeliverBatch,
		ScriptPath: ScriptDeliverBatch,
		Parameters: map[string]any{
			paramBatchID:   batch.ID,
			paramEventType: batch.EventType.String(),
			paramTenantID:  batch.TenantID,
			paramEntityID:  batch.EntityID,
			paramBatch:     string(encoded),
		},
		IdempotencyKey: batch.ID,
	}, nil
}

// BatchFromMessage decodes a batch produced by BatchMessage.
func BatchFromMessage(msg *job.ExecutionMessage) (core.DeliveryBatch, error) {
	if msg == nil {
		return core.DeliveryBatch{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDDeliverBatch {
		return core.DeliveryBatch{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, ok := msg.Parameters[paramBatch].(string)
	if !ok || raw == "" {
		return core.DeliveryBatch{}, fmt.Errorf("gojob: batch parameter is required")
	}
	var payload batchPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return core.DeliveryBatch{}, fmt.Errorf("gojob: decode batch: %w", err)
	}
	eventType, err := core.ParseEventType(payload.EventType)
	if err != nil {
		return core.DeliveryBatch{}, err
	}
	batch := core.DeliveryBatch{
		ID:        payload.ID,
		EventType: eventType,
		TenantID:  payload.TenantID,
		EntityID:  payload.EntityID,
		Body:      []byte(payload.Body),
		Targets:   make([]core.WebhookTarget, 0, len(payload.Targets)),
		CreatedAt: payload.CreatedAt,
	}
	for _, target := range payload.Targets {
		batch.Targets = append(batch.Targets, core.WebhookTarget{
			ID:       target.ID,
			TenantID: payload.TenantID,
			URL:      target.URL,
			Secret:   target.Secret,
			IsActive: true,
		})
	}
	return batch, nil
}

// NewBatchHandler runs a decoded batch through the deliverer.
// Returning an error asks the worker to retry the whole batch.
func NewBatchHandler(deliverer core.BatchDeliverer) func(ctx context.Context, msg *job.ExecutionMessage) error {
	return func(ctx context.Context, msg *job.ExecutionMessage) error {
		if deliverer == nil {
			return fmt.Errorf("gojob: batch deliverer is not configured")
		}
		batch, err := BatchFromMessage(msg)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrPermanentJob, err)
		}
		_, err = deliverer.Deliver(ctx, batch)
		return err
	}
}
