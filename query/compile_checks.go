package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/webhooks"
)

var (
	_ gocmd.Querier[ListTargetsMessage, []core.WebhookTarget]   = (*ListTargetsQuery)(nil)
	_ gocmd.Querier[ListLeadActivityMessage, []core.AuditEntry] = (*ListLeadActivityQuery)(nil)
	_ gocmd.Querier[CheckTargetMessage, webhooks.HealthReport]  = (*CheckTargetQuery)(nil)
	_ HealthProber                                              = (*webhooks.HealthChecker)(nil)
)
