package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	"github.com/google/uuid"
)

// TimestampLayout is ISO-8601 with a numeric zone offset.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// Envelope is the wire body every target receives. Field order is part of the contract.
type Envelope struct {
	Event     string           `json:"event"`
	Timestamp string           `json:"timestamp"`
	Lead      core.LeadPayload `json:"lead"`
}

// BuildEnvelope serializes an event once; the bytes are reused for every target and retry.
func BuildEnvelope(event core.DispatchEvent) ([]byte, error) {
	if !event.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidEventType, event.Type)
	}
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	body, err := json.Marshal(Envelope{
		Event:     event.Type.String(),
		Timestamp: timestamp.Format(TimestampLayout),
		Lead:      event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("webhooks: encode envelope: %w", err)
	}
	return body, nil
}

// DecodeEnvelope is the consumer-side counterpart of BuildEnvelope.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("webhooks: decode envelope: %w", err)
	}
	return envelope, nil
}

// NewBatch freezes an event and its matched targets into a deliverable batch.
func NewBatch(event core.DispatchEvent, targets []core.WebhookTarget) (core.DeliveryBatch, error) {
	if len(targets) == 0 {
		return core.DeliveryBatch{}, fmt.Errorf("webhooks: batch requires at least one target")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	body, err := BuildEnvelope(event)
	if err != nil {
		return core.DeliveryBatch{}, err
	}
	return core.DeliveryBatch{
		ID:        uuid.NewString(),
		EventType: event.Type,
		TenantID:  strings.TrimSpace(event.TenantID),
		EntityID:  strings.TrimSpace(event.EntityID),
		Body:      body,
		Targets:   core.CloneTargets(targets),
		CreatedAt: event.Timestamp.UTC(),
	}, nil
}
