package sqlstore

import "github.com/goliatone/go-leadhooks/core"

var (
	_ core.TargetStore   = (*TargetStore)(nil)
	_ core.AuditRecorder = (*AuditStore)(nil)
)
