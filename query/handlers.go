package query

import (
	"context"

	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/webhooks"
)

type AuditReader interface {
	ListByLead(ctx context.Context, leadID string) ([]core.AuditEntry, error)
}

type HealthProber interface {
	Check(ctx context.Context, url string, secret string) (webhooks.HealthReport, error)
}

type ListTargetsQuery struct {
	store core.TargetStore
}

func NewListTargetsQuery(store core.TargetStore) *ListTargetsQuery {
	return &ListTargetsQuery{store: store}
}

func (q *ListTargetsQuery) Query(ctx context.Context, msg ListTargetsMessage) ([]core.WebhookTarget, error) {
	if q == nil || q.store == nil {
		return nil, core.DependencyError("query: target store is required")
	}
	return q.store.ListActive(ctx, msg.TenantID)
}

type ListLeadActivityQuery struct {
	reader AuditReader
}

func NewListLeadActivityQuery(reader AuditReader) *ListLeadActivityQuery {
	return &ListLeadActivityQuery{reader: reader}
}

func (q *ListLeadActivityQuery) Query(ctx context.Context, msg ListLeadActivityMessage) ([]core.AuditEntry, error) {
	if q == nil || q.reader == nil {
		return nil, core.DependencyError("query: audit reader is required")
	}
	return q.reader.ListByLead(ctx, msg.LeadID)
}

type CheckTargetQuery struct {
	prober HealthProber
}

func NewCheckTargetQuery(prober HealthProber) *CheckTargetQuery {
	return &CheckTargetQuery{prober: prober}
}

func (q *CheckTargetQuery) Query(ctx context.Context, msg CheckTargetMessage) (webhooks.HealthReport, error) {
	if q == nil || q.prober == nil {
		return webhooks.HealthReport{}, core.DependencyError("query: health prober is required")
	}
	return q.prober.Check(ctx, msg.URL, msg.Secret)
}
