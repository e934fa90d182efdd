package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[WriteLinkCreatedNoteMessage]  = (*WriteLinkCreatedNoteCommand)(nil)
	_ gocmd.Commander[WriteBookedNoteMessage]       = (*WriteBookedNoteCommand)(nil)
	_ gocmd.Commander[WriteCancelledNoteMessage]    = (*WriteCancelledNoteCommand)(nil)
	_ gocmd.Commander[ReceiveWebhookMessage]        = (*ReceiveWebhookCommand)(nil)
	_ gocmd.Commander[ProcessSyncQueueMessage]      = (*ProcessSyncQueueCommand)(nil)
	_ gocmd.Commander[DispatchNotificationsMessage] = (*DispatchNotificationsCommand)(nil)
)
