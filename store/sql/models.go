package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	"github.com/uptrace/bun"
)

type webhookTargetRecord struct {
	bun.BaseModel `bun:"table:leadhooks_webhook_targets,alias:wt"`

	ID        string     `bun:"id,pk"`
	TenantID  string     `bun:"tenant_id,notnull"`
	FormID    string     `bun:"form_id,notnull"`
	Name      string     `bun:"name,notnull"`
	URL       string     `bun:"url,notnull"`
	Secret    string     `bun:"secret,notnull"`
	Events    []string   `bun:"events,type:jsonb,notnull"`
	IsActive  bool       `bun:"is_active,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete"`
}

func newWebhookTargetRecord(target core.WebhookTarget, now time.Time) *webhookTargetRecord {
	target = core.NormalizeTarget(target)
	createdAt := target.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return &webhookTargetRecord{
		ID:        target.ID,
		TenantID:  target.TenantID,
		FormID:    target.FormID,
		Name:      target.Name,
		URL:       target.URL,
		Secret:    target.Secret,
		Events:    append([]string{}, target.SubscribedEvents...),
		IsActive:  target.IsActive,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
}

func (r *webhookTargetRecord) toDomain() core.WebhookTarget {
	if r == nil {
		return core.WebhookTarget{}
	}
	return core.NormalizeTarget(core.WebhookTarget{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Name:             r.Name,
		URL:              r.URL,
		Secret:           r.Secret,
		SubscribedEvents: append([]string{}, r.Events...),
		IsActive:         r.IsActive,
		FormID:           r.FormID,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	})
}

type leadActivityRecord struct {
	bun.BaseModel `bun:"table:leadhooks_lead_activities,alias:la"`

	ID        string    `bun:"id,pk"`
	LeadID    string    `bun:"lead_id,notnull"`
	TenantID  string    `bun:"tenant_id,notnull"`
	Type      string    `bun:"type,notnull"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newLeadActivityRecord(entry core.AuditEntry, now time.Time) *leadActivityRecord {
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return &leadActivityRecord{
		ID:        strings.TrimSpace(entry.ID),
		LeadID:    strings.TrimSpace(entry.LeadID),
		TenantID:  strings.TrimSpace(entry.TenantID),
		Type:      strings.TrimSpace(string(entry.Type)),
		Content:   entry.Content,
		CreatedAt: createdAt,
	}
}

func (r *leadActivityRecord) toDomain() core.AuditEntry {
	if r == nil {
		return core.AuditEntry{}
	}
	return core.AuditEntry{
		ID:        r.ID,
		LeadID:    r.LeadID,
		TenantID:  r.TenantID,
		Type:      core.AuditEntryType(r.Type),
		Content:   r.Content,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
