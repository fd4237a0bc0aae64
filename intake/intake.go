package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/trigger"
	"github.com/goliatone/go-leadhooks/webhooks"
)

// LeadNotifier receives the lead-created event once the dedicated delivery is settled.
type LeadNotifier interface {
	LeadCreated(ctx context.Context, in trigger.Created) (trigger.Report, error)
}

type Options struct {
	Enqueuer core.BatchEnqueuer
	Notifier LeadNotifier
	Observer core.Observer
	Now      func() time.Time
}

// Result describes one public form submission.
type Result struct {
	// FormBatchID is empty when no form.submission batch was enqueued.
	FormBatchID string
	Source      core.CreationSource
	Report      trigger.Report
}

// Intake delivers public form submissions to the form's dedicated endpoint and then
// emits the regular lead-created event.
type Intake struct {
	enqueuer core.BatchEnqueuer
	notifier LeadNotifier
	observer core.Observer
	now      func() time.Time
}

func New(opts Options) (*Intake, error) {
	if opts.Enqueuer == nil {
		return nil, fmt.Errorf("intake: batch enqueuer is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("intake: lead notifier is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Intake{
		enqueuer: opts.Enqueuer,
		notifier: opts.Notifier,
		observer: opts.Observer,
		now:      now,
	}, nil
}

// FormTarget builds the single synthetic target for a form's legacy endpoint. It carries
// no subscriptions: it is addressed directly and never resolved from the registry.
func FormTarget(form core.Form) (core.WebhookTarget, bool) {
	url := strings.TrimSpace(form.WebhookURL)
	if url == "" {
		return core.WebhookTarget{}, false
	}
	return core.WebhookTarget{
		ID:               "form:" + strings.TrimSpace(form.ID),
		TenantID:         strings.TrimSpace(form.TenantID),
		Name:             form.Name,
		URL:              url,
		Secret:           form.WebhookSecret,
		SubscribedEvents: []string{},
		IsActive:         true,
		FormID:           strings.TrimSpace(form.ID),
	}, true
}

// Submit handles a lead captured by a public form.
func (i *Intake) Submit(ctx context.Context, form core.Form, lead core.Lead) (Result, error) {
	if strings.TrimSpace(form.ID) == "" {
		return Result{}, fmt.Errorf("%w: form id is required", core.ErrInvalidLead)
	}
	if lead.FormID == "" {
		lead.FormID = form.ID
	}
	if lead.TenantID == "" {
		lead.TenantID = form.TenantID
	}
	if lead.Source == "" {
		lead.Source = string(core.SourceForm)
	}
	if err := lead.Validate(); err != nil {
		return Result{}, err
	}
	if form.TenantID != "" && form.TenantID != lead.TenantID {
		return Result{}, fmt.Errorf("%w: lead tenant does not own form %q", core.ErrInvalidLead, form.ID)
	}

	result := Result{Source: core.SourceForm}
	if batchID, ok := i.deliverToForm(ctx, form, lead); ok {
		result.FormBatchID = batchID
		result.Source = core.SourceFormIntake
	}

	report, err := i.notifier.LeadCreated(ctx, trigger.Created{Lead: lead, Source: result.Source})
	if err != nil {
		return result, err
	}
	result.Report = report
	return result, nil
}

func (i *Intake) deliverToForm(ctx context.Context, form core.Form, lead core.Lead) (string, bool) {
	target, ok := FormTarget(form)
	if !ok {
		return "", false
	}
	target.TenantID = lead.TenantID
	fields := map[string]any{
		"form_id":   form.ID,
		"lead_id":   lead.ID,
		"tenant_id": lead.TenantID,
	}
	if err := target.Validate(); err != nil {
		fields["error"] = err.Error()
		i.observer.Warn(ctx, "form webhook skipped, invalid endpoint", fields)
		return "", false
	}
	batch, err := webhooks.NewBatch(core.DispatchEvent{
		Type:      core.EventFormSubmission,
		TenantID:  lead.TenantID,
		EntityID:  lead.ID,
		Payload:   lead.Project(),
		Timestamp: i.now(),
	}, []core.WebhookTarget{target})
	if err != nil {
		fields["error"] = err.Error()
		i.observer.Error(ctx, "form webhook batch build failed", fields)
		return "", false
	}
	if err := i.enqueuer.EnqueueBatch(ctx, batch); err != nil {
		fields["error"] = err.Error()
		i.observer.Error(ctx, "form webhook enqueue failed", fields)
		return "", false
	}
	fields["batch_id"] = batch.ID
	i.observer.Info(ctx, "form submission enqueued", fields)
	i.observer.Count(ctx, core.MetricDispatchEnqueued, 1, map[string]string{"event_type": core.EventFormSubmission.String()})
	return batch.ID, true
}
