package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/breaker"
	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/targets"
	"github.com/goliatone/go-leadhooks/webhooks"
)

// Gate is the loop-protection check run before every dispatch.
type Gate interface {
	Check(ctx context.Context, tenantID string, entityID string) (breaker.Decision, error)
}

// SourcePolicy controls generic fan-out for leads created through a given source.
type SourcePolicy struct {
	SuppressGenericCreated bool
}

// DefaultSourcePolicies suppresses lead.created for the public intake path, which
// already delivered form.submission to the form's own endpoint.
func DefaultSourcePolicies() map[core.CreationSource]SourcePolicy {
	return map[core.CreationSource]SourcePolicy{
		core.SourceFormIntake: {SuppressGenericCreated: true},
	}
}

type Options struct {
	Gate     Gate
	Resolver core.TargetResolver
	Enqueuer core.BatchEnqueuer
	Audit    core.AuditRecorder
	Policies map[core.CreationSource]SourcePolicy
	Observer core.Observer
	Now      func() time.Time
}

// Created describes a persisted lead creation.
type Created struct {
	Lead             core.Lead
	Source           core.CreationSource
	SuppressWebhooks bool
}

// Updated describes a persisted lead update. Original holds the pre-update values of the
// fields the mutation touched; fields missing from it are treated as untouched.
type Updated struct {
	Lead             core.Lead
	Original         map[core.WatchedField]string
	SuppressWebhooks bool
}

type Status string

const (
	StatusEnqueued   Status = "enqueued"
	StatusSuppressed Status = "suppressed"
	StatusThrottled  Status = "throttled"
	StatusNoTargets  Status = "no_targets"
	StatusFailed     Status = "failed"
)

// Dispatch is the outcome of one dispatch handoff.
type Dispatch struct {
	EventType core.EventType
	Status    Status
	BatchID   string
	Targets   int
	Err       error
}

type Report struct {
	Audit      []core.AuditEntry
	Dispatches []Dispatch
}

// Enqueued returns the dispatches that produced a delivery batch.
func (r Report) Enqueued() []Dispatch {
	out := []Dispatch{}
	for _, dispatch := range r.Dispatches {
		if dispatch.Status == StatusEnqueued {
			out = append(out, dispatch)
		}
	}
	return out
}

type Trigger struct {
	gate     Gate
	resolver core.TargetResolver
	enqueuer core.BatchEnqueuer
	audit    core.AuditRecorder
	policies map[core.CreationSource]SourcePolicy
	observer core.Observer
	now      func() time.Time
}

func New(opts Options) (*Trigger, error) {
	if opts.Gate == nil {
		return nil, fmt.Errorf("trigger: breaker gate is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("trigger: target resolver is required")
	}
	if opts.Enqueuer == nil {
		return nil, fmt.Errorf("trigger: batch enqueuer is required")
	}
	policies := opts.Policies
	if policies == nil {
		policies = DefaultSourcePolicies()
	}
	copied := make(map[core.CreationSource]SourcePolicy, len(policies))
	for source, policy := range policies {
		copied[core.CreationSource(strings.TrimSpace(string(source)))] = policy
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	audit := opts.Audit
	if audit == nil {
		audit = nopAudit{}
	}
	return &Trigger{
		gate:     opts.Gate,
		resolver: opts.Resolver,
		enqueuer: opts.Enqueuer,
		audit:    audit,
		policies: copied,
		observer: opts.Observer,
		now:      now,
	}, nil
}

// Policy returns the policy registered for source.
func (t *Trigger) Policy(source core.CreationSource) SourcePolicy {
	return t.policies[source]
}

// LeadCreated records the creation audit entry and dispatches lead.created unless the
// mutation or its creation source suppress it. The audit text names the lead's stored
// source. Only an invalid lead is returned as an error.
func (t *Trigger) LeadCreated(ctx context.Context, in Created) (Report, error) {
	if err := in.Lead.Validate(); err != nil {
		return Report{}, err
	}
	source := in.Source
	if strings.TrimSpace(string(source)) == "" {
		source = core.CreationSource(in.Lead.Source)
	}
	label := strings.TrimSpace(in.Lead.Source)
	if label == "" {
		label = string(source)
	}
	report := Report{}
	t.record(ctx, &report, in.Lead, core.AuditEntrySystem, fmt.Sprintf("Lead created via %s", label))

	switch {
	case in.SuppressWebhooks:
		report.Dispatches = append(report.Dispatches, t.suppressed(ctx, in.Lead, core.EventLeadCreated, "mutation"))
	case t.Policy(source).SuppressGenericCreated:
		report.Dispatches = append(report.Dispatches, t.suppressed(ctx, in.Lead, core.EventLeadCreated, "source:"+string(source)))
	default:
		report.Dispatches = append(report.Dispatches, t.Dispatch(ctx, core.EventLeadCreated, in.Lead))
	}
	return report, nil
}

// LeadUpdated audits every watched field transition and dispatches each derived event
// type once.
func (t *Trigger) LeadUpdated(ctx context.Context, in Updated) (Report, error) {
	if err := in.Lead.Validate(); err != nil {
		return Report{}, err
	}
	report := Report{}
	events := ChangedEvents(in.Lead, in.Original)
	for _, field := range core.WatchedFields() {
		original, touched := in.Original[field]
		current := in.Lead.FieldValue(field)
		if !touched || original == current {
			continue
		}
		t.record(ctx, &report, in.Lead, core.AuditEntryStatusChange,
			fmt.Sprintf("%s changed from '%s' to '%s'", field.Label(), original, current))
	}
	for _, eventType := range events {
		if in.SuppressWebhooks {
			report.Dispatches = append(report.Dispatches, t.suppressed(ctx, in.Lead, eventType, "mutation"))
			continue
		}
		report.Dispatches = append(report.Dispatches, t.Dispatch(ctx, eventType, in.Lead))
	}
	return report, nil
}

// ChangedEvents derives the deduplicated event types of an update: one per changed
// watched field followed by the generic lead.updated.
func ChangedEvents(lead core.Lead, original map[core.WatchedField]string) []core.EventType {
	events := []core.EventType{}
	seen := map[core.EventType]struct{}{}
	for _, field := range core.WatchedFields() {
		previous, touched := original[field]
		if !touched || previous == lead.FieldValue(field) {
			continue
		}
		eventType, ok := field.EventType()
		if !ok {
			continue
		}
		if _, dup := seen[eventType]; dup {
			continue
		}
		seen[eventType] = struct{}{}
		events = append(events, eventType)
	}
	if len(events) > 0 {
		events = append(events, core.EventLeadUpdated)
	}
	return events
}

// Dispatch runs the handoff for one event: entity and tenant breaker, target resolution
// and filtering, then a single batch enqueue when any target matches.
func (t *Trigger) Dispatch(ctx context.Context, eventType core.EventType, lead core.Lead) Dispatch {
	result := Dispatch{EventType: eventType}
	fields := map[string]any{
		"event_type": eventType.String(),
		"tenant_id":  lead.TenantID,
		"lead_id":    lead.ID,
	}

	decision, err := t.gate.Check(ctx, lead.TenantID, lead.ID)
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		t.observer.Error(ctx, "dispatch breaker check failed", withError(fields, err))
		return result
	}
	if !decision.Allowed {
		result.Status = StatusThrottled
		result.Err = decision.Err()
		if decision.Tripped {
			t.tripped(ctx, lead, decision, fields)
		}
		return result
	}

	resolved, err := t.resolver.Resolve(ctx, lead.TenantID)
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		t.observer.Error(ctx, "dispatch target resolution failed", withError(fields, err))
		return result
	}
	matched := targets.Match(resolved, eventType, lead.FormID)
	if len(matched) == 0 {
		result.Status = StatusNoTargets
		t.observer.Debug(ctx, "dispatch skipped, no subscribed targets", fields)
		return result
	}

	batch, err := webhooks.NewBatch(core.DispatchEvent{
		Type:      eventType,
		TenantID:  lead.TenantID,
		EntityID:  lead.ID,
		Payload:   lead.Project(),
		Timestamp: t.now(),
	}, matched)
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		t.observer.Error(ctx, "dispatch batch build failed", withError(fields, err))
		return result
	}
	if err := t.enqueuer.EnqueueBatch(ctx, batch); err != nil {
		result.Status = StatusFailed
		result.Err = err
		t.observer.Error(ctx, "dispatch enqueue failed", withError(fields, err))
		return result
	}

	result.Status = StatusEnqueued
	result.BatchID = batch.ID
	result.Targets = len(batch.Targets)
	fields["batch_id"] = batch.ID
	fields["targets"] = len(batch.Targets)
	t.observer.Info(ctx, "dispatch enqueued", fields)
	t.observer.Count(ctx, core.MetricDispatchEnqueued, 1, map[string]string{"event_type": eventType.String()})
	return result
}

func (t *Trigger) tripped(ctx context.Context, lead core.Lead, decision breaker.Decision, fields map[string]any) {
	logFields := map[string]any{
		"scope":     string(decision.Scope),
		"scope_key": decision.Key,
		"limit":     decision.Limit,
		"window_ms": decision.Window.Milliseconds(),
	}
	for key, value := range fields {
		logFields[key] = value
	}
	t.observer.Warn(ctx, "webhook loop protection tripped, dispatch paused", logFields)
	if decision.Scope != breaker.ScopeEntity {
		return
	}
	content := fmt.Sprintf(
		"Webhooks paused: more than %d events within %s (loop protection)",
		decision.Limit,
		decision.Window,
	)
	t.record(ctx, nil, lead, core.AuditEntrySystem, content)
}

func (t *Trigger) suppressed(ctx context.Context, lead core.Lead, eventType core.EventType, reason string) Dispatch {
	t.observer.Debug(ctx, "dispatch suppressed", map[string]any{
		"event_type": eventType.String(),
		"lead_id":    lead.ID,
		"reason":     reason,
	})
	return Dispatch{EventType: eventType, Status: StatusSuppressed}
}

func (t *Trigger) record(ctx context.Context, report *Report, lead core.Lead, kind core.AuditEntryType, content string) {
	entry := core.AuditEntry{
		LeadID:    lead.ID,
		TenantID:  lead.TenantID,
		Type:      kind,
		Content:   content,
		CreatedAt: t.now().UTC(),
	}
	if err := t.audit.Record(ctx, entry); err != nil {
		t.observer.Warn(ctx, "audit entry not recorded", map[string]any{
			"lead_id": lead.ID,
			"type":    string(kind),
			"error":   err.Error(),
		})
	}
	if report != nil {
		report.Audit = append(report.Audit, entry)
	}
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		out[key] = value
	}
	out["error"] = err.Error()
	return out
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, core.AuditEntry) error { return nil }
