package query

import (
	"strings"

	"github.com/goliatone/go-leadhooks/core"
)

const (
	TypeListTargets      = "leadhooks.query.targets.list"
	TypeListLeadActivity = "leadhooks.query.lead_activity.list"
	TypeCheckTarget      = "leadhooks.query.target.health"
)

type ListTargetsMessage struct {
	TenantID string
}

func (ListTargetsMessage) Type() string { return TypeListTargets }

func (m ListTargetsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.ValidationError("query", "tenant_id", "tenant id is required")
	}
	return nil
}

type ListLeadActivityMessage struct {
	LeadID string
}

func (ListLeadActivityMessage) Type() string { return TypeListLeadActivity }

func (m ListLeadActivityMessage) Validate() error {
	if strings.TrimSpace(m.LeadID) == "" {
		return core.ValidationError("query", "lead_id", "lead id is required")
	}
	return nil
}

// CheckTargetMessage probes a prospective endpoint before it is saved.
type CheckTargetMessage struct {
	URL    string
	Secret string
}

func (CheckTargetMessage) Type() string { return TypeCheckTarget }

func (m CheckTargetMessage) Validate() error {
	if strings.TrimSpace(m.URL) == "" {
		return core.ValidationError("query", "url", "url is required")
	}
	return nil
}
