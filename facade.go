package schedsync

import (
	"fmt"

	schedcommand "github.com/goliatone/go-schedsync/command"
)

// Commands holds the dispatchable command surface. Each command validates
// its message and stores the operation result in the caller's collector.
type Commands struct {
	WriteLinkCreatedNote  *schedcommand.WriteLinkCreatedNoteCommand
	WriteBookedNote       *schedcommand.WriteBookedNoteCommand
	WriteCancelledNote    *schedcommand.WriteCancelledNoteCommand
	ReceiveWebhook        *schedcommand.ReceiveWebhookCommand
	ProcessSyncQueue      *schedcommand.ProcessSyncQueueCommand
	DispatchNotifications *schedcommand.DispatchNotificationsCommand
}

type Facade struct {
	service  *Service
	commands Commands
}

// NewFacade wires the command envelopes over a fully configured service.
// Partial services (no ATS client, no webhook secret) cannot back the
// command surface and are rejected here rather than at dispatch time.
func NewFacade(service *Service) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("schedsync: service is required")
	}
	if service.Writeback() == nil {
		return nil, fmt.Errorf("schedsync: writeback service is not configured")
	}
	if service.Webhooks() == nil {
		return nil, fmt.Errorf("schedsync: webhook ingest is not configured")
	}
	if service.Queue() == nil {
		return nil, fmt.Errorf("schedsync: queue worker is not configured")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		WriteLinkCreatedNote:  schedcommand.NewWriteLinkCreatedNoteCommand(service.Writeback()),
		WriteBookedNote:       schedcommand.NewWriteBookedNoteCommand(service.Writeback()),
		WriteCancelledNote:    schedcommand.NewWriteCancelledNoteCommand(service.Writeback()),
		ReceiveWebhook:        schedcommand.NewReceiveWebhookCommand(service.Webhooks()),
		ProcessSyncQueue:      schedcommand.NewProcessSyncQueueCommand(service.Queue()),
		DispatchNotifications: schedcommand.NewDispatchNotificationsCommand(service.Queue()),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() *Service {
	if f == nil {
		return nil
	}
	return f.service
}
