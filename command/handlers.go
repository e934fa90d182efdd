// Package command wraps the mutating service surface in go-command
// envelopes so callers can dispatch, validate and collect results without
// binding to the concrete services.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-schedsync/core"
	"github.com/goliatone/go-schedsync/webhooks"
	"github.com/goliatone/go-schedsync/worker"
	"github.com/goliatone/go-schedsync/writeback"
)

type WritebackService interface {
	WriteLinkCreatedNote(ctx context.Context, note writeback.LinkCreatedNote) writeback.Result
	WriteBookedNote(ctx context.Context, note writeback.BookedNote) writeback.Result
	WriteCancelledNote(ctx context.Context, note writeback.CancelledNote) writeback.Result
}

type WebhookService interface {
	ReceiveWebhook(ctx context.Context, payload webhooks.Payload, signature string, rawBody []byte) (webhooks.ReceiveResult, error)
}

type QueueService interface {
	ProcessBatch(ctx context.Context) (worker.BatchSummary, error)
	NotificationCycle(ctx context.Context) (worker.BatchSummary, error)
}

type WriteLinkCreatedNoteCommand struct {
	service WritebackService
}

func NewWriteLinkCreatedNoteCommand(service WritebackService) *WriteLinkCreatedNoteCommand {
	return &WriteLinkCreatedNoteCommand{service: service}
}

func (c *WriteLinkCreatedNoteCommand) Execute(ctx context.Context, msg WriteLinkCreatedNoteMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: writeback service is required")
	}
	storeResult(ctx, c.service.WriteLinkCreatedNote(ctx, msg.Note))
	return nil
}

type WriteBookedNoteCommand struct {
	service WritebackService
}

func NewWriteBookedNoteCommand(service WritebackService) *WriteBookedNoteCommand {
	return &WriteBookedNoteCommand{service: service}
}

func (c *WriteBookedNoteCommand) Execute(ctx context.Context, msg WriteBookedNoteMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: writeback service is required")
	}
	storeResult(ctx, c.service.WriteBookedNote(ctx, msg.Note))
	return nil
}

type WriteCancelledNoteCommand struct {
	service WritebackService
}

func NewWriteCancelledNoteCommand(service WritebackService) *WriteCancelledNoteCommand {
	return &WriteCancelledNoteCommand{service: service}
}

func (c *WriteCancelledNoteCommand) Execute(ctx context.Context, msg WriteCancelledNoteMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: writeback service is required")
	}
	storeResult(ctx, c.service.WriteCancelledNote(ctx, msg.Note))
	return nil
}

type ReceiveWebhookCommand struct {
	service WebhookService
}

func NewReceiveWebhookCommand(service WebhookService) *ReceiveWebhookCommand {
	return &ReceiveWebhookCommand{service: service}
}

func (c *ReceiveWebhookCommand) Execute(ctx context.Context, msg ReceiveWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.ReceiveWebhook(ctx, msg.Payload, msg.Signature, msg.RawBody)
	if err != nil {
		return core.MapError(err)
	}
	storeResult(ctx, out)
	return nil
}

type ProcessSyncQueueCommand struct {
	service QueueService
}

func NewProcessSyncQueueCommand(service QueueService) *ProcessSyncQueueCommand {
	return &ProcessSyncQueueCommand{service: service}
}

func (c *ProcessSyncQueueCommand) Execute(ctx context.Context, _ ProcessSyncQueueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: queue service is required")
	}
	out, err := c.service.ProcessBatch(ctx)
	if err != nil {
		return core.MapError(err)
	}
	storeResult(ctx, out)
	return nil
}

type DispatchNotificationsCommand struct {
	service QueueService
}

func NewDispatchNotificationsCommand(service QueueService) *DispatchNotificationsCommand {
	return &DispatchNotificationsCommand{service: service}
}

func (c *DispatchNotificationsCommand) Execute(ctx context.Context, _ DispatchNotificationsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: queue service is required")
	}
	out, err := c.service.NotificationCycle(ctx)
	if err != nil {
		return core.MapError(err)
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
