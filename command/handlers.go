package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/intake"
	"github.com/goliatone/go-leadhooks/trigger"
)

type LeadEventService interface {
	LeadCreated(ctx context.Context, in trigger.Created) (trigger.Report, error)
	LeadUpdated(ctx context.Context, in trigger.Updated) (trigger.Report, error)
}

type FormIntakeService interface {
	Submit(ctx context.Context, form core.Form, lead core.Lead) (intake.Result, error)
}

type LeadCreatedCommand struct {
	service LeadEventService
}

func NewLeadCreatedCommand(service LeadEventService) *LeadCreatedCommand {
	return &LeadCreatedCommand{service: service}
}

func (c *LeadCreatedCommand) Execute(ctx context.Context, msg LeadCreatedMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command: lead event service is required")
	}
	out, err := c.service.LeadCreated(ctx, trigger.Created{
		Lead:             msg.Lead,
		Source:           msg.Source,
		SuppressWebhooks: msg.SuppressWebhooks,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LeadUpdatedCommand struct {
	service LeadEventService
}

func NewLeadUpdatedCommand(service LeadEventService) *LeadUpdatedCommand {
	return &LeadUpdatedCommand{service: service}
}

func (c *LeadUpdatedCommand) Execute(ctx context.Context, msg LeadUpdatedMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command: lead event service is required")
	}
	out, err := c.service.LeadUpdated(ctx, trigger.Updated{
		Lead:             msg.Lead,
		Original:         msg.WatchedOriginal(),
		SuppressWebhooks: msg.SuppressWebhooks,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type FormSubmittedCommand struct {
	service FormIntakeService
}

func NewFormSubmittedCommand(service FormIntakeService) *FormSubmittedCommand {
	return &FormSubmittedCommand{service: service}
}

func (c *FormSubmittedCommand) Execute(ctx context.Context, msg FormSubmittedMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command: form intake service is required")
	}
	out, err := c.service.Submit(ctx, msg.Form, msg.Lead)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
