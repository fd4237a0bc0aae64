package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[LeadCreatedMessage]   = (*LeadCreatedCommand)(nil)
	_ gocmd.Commander[LeadUpdatedMessage]   = (*LeadUpdatedCommand)(nil)
	_ gocmd.Commander[FormSubmittedMessage] = (*FormSubmittedCommand)(nil)
)
