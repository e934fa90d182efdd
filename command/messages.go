package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-schedsync/webhooks"
	"github.com/goliatone/go-schedsync/writeback"
)

const (
	TypeWriteLinkCreatedNote  = "schedsync.command.writeback.link_created"
	TypeWriteBookedNote       = "schedsync.command.writeback.booked"
	TypeWriteCancelledNote    = "schedsync.command.writeback.cancelled"
	TypeReceiveWebhook        = "schedsync.command.webhook.receive"
	TypeProcessSyncQueue      = "schedsync.command.queue.sync"
	TypeDispatchNotifications = "schedsync.command.queue.notifications"
)

type WriteLinkCreatedNoteMessage struct {
	Note writeback.LinkCreatedNote
}

func (WriteLinkCreatedNoteMessage) Type() string { return TypeWriteLinkCreatedNote }

func (m WriteLinkCreatedNoteMessage) Validate() error {
	if strings.TrimSpace(m.Note.RequestID) == "" {
		return fmt.Errorf("command: scheduling request id is required")
	}
	if strings.TrimSpace(m.Note.SchedulingLink) == "" {
		return fmt.Errorf("command: scheduling link is required")
	}
	return nil
}

type WriteBookedNoteMessage struct {
	Note writeback.BookedNote
}

func (WriteBookedNoteMessage) Type() string { return TypeWriteBookedNote }

func (m WriteBookedNoteMessage) Validate() error {
	if strings.TrimSpace(m.Note.BookingID) == "" {
		return fmt.Errorf("command: booking id is required")
	}
	if m.Note.StartsAt.IsZero() || m.Note.EndsAt.IsZero() {
		return fmt.Errorf("command: booking start and end times are required")
	}
	if !m.Note.EndsAt.After(m.Note.StartsAt) {
		return fmt.Errorf("command: booking end must follow its start")
	}
	return nil
}

type WriteCancelledNoteMessage struct {
	Note writeback.CancelledNote
}

func (WriteCancelledNoteMessage) Type() string { return TypeWriteCancelledNote }

func (m WriteCancelledNoteMessage) Validate() error {
	if strings.TrimSpace(m.Note.BookingID) == "" {
		return fmt.Errorf("command: booking id is required")
	}
	return nil
}

type ReceiveWebhookMessage struct {
	Payload   webhooks.Payload
	Signature string
	RawBody   []byte
}

func (ReceiveWebhookMessage) Type() string { return TypeReceiveWebhook }

func (m ReceiveWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Payload.EventType) == "" {
		return fmt.Errorf("command: webhook event type is required")
	}
	if len(m.RawBody) == 0 {
		return fmt.Errorf("command: webhook raw body is required")
	}
	return nil
}

type ProcessSyncQueueMessage struct{}

func (ProcessSyncQueueMessage) Type() string { return TypeProcessSyncQueue }

func (ProcessSyncQueueMessage) Validate() error { return nil }

type DispatchNotificationsMessage struct{}

func (DispatchNotificationsMessage) Type() string { return TypeDispatchNotifications }

func (DispatchNotificationsMessage) Validate() error { return nil }
