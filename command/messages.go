package command

import (
	"strings"

	"github.com/goliatone/go-leadhooks/core"
)

const (
	TypeLeadCreated   = "leadhooks.command.lead.created"
	TypeLeadUpdated   = "leadhooks.command.lead.updated"
	TypeFormSubmitted = "leadhooks.command.form.submitted"
)

// LeadCreatedMessage is emitted by the code path that persisted a new lead.
type LeadCreatedMessage struct {
	Lead             core.Lead
	Source           core.CreationSource
	SuppressWebhooks bool
}

func (LeadCreatedMessage) Type() string { return TypeLeadCreated }

func (m LeadCreatedMessage) Validate() error {
	return validateLead(m.Lead)
}

// LeadUpdatedMessage is emitted after a lead update. Original carries the previous values
// of the fields the update touched; only watched fields are acted on.
type LeadUpdatedMessage struct {
	Lead             core.Lead
	Original         map[core.WatchedField]string
	SuppressWebhooks bool
}

func (LeadUpdatedMessage) Type() string { return TypeLeadUpdated }

func (m LeadUpdatedMessage) Validate() error {
	return validateLead(m.Lead)
}

// WatchedOriginal drops the previous values of fields that never produce an event.
func (m LeadUpdatedMessage) WatchedOriginal() map[core.WatchedField]string {
	out := make(map[core.WatchedField]string, len(m.Original))
	for field, value := range m.Original {
		if _, ok := field.EventType(); ok {
			out[field] = value
		}
	}
	return out
}

// FormSubmittedMessage is emitted by the public form endpoint after the lead is stored.
type FormSubmittedMessage struct {
	Form core.Form
	Lead core.Lead
}

func (FormSubmittedMessage) Type() string { return TypeFormSubmitted }

func (m FormSubmittedMessage) Validate() error {
	if strings.TrimSpace(m.Form.ID) == "" {
		return core.ValidationError("command", "form.id", "form id is required")
	}
	if strings.TrimSpace(m.Lead.ID) == "" {
		return core.ValidationError("command", "lead.id", "lead id is required")
	}
	return nil
}

func validateLead(lead core.Lead) error {
	if strings.TrimSpace(lead.ID) == "" {
		return core.ValidationError("command", "lead.id", "lead id is required")
	}
	if strings.TrimSpace(lead.TenantID) == "" {
		return core.ValidationError("command", "lead.tenant_id", "tenant id is required")
	}
	return nil
}
