package sqlstore

import "github.com/goliatone/go-schedsync/core"

var (
	_ core.WebhookEventStore    = (*WebhookEventStore)(nil)
	_ core.SyncJobStore         = (*SyncJobStore)(nil)
	_ core.NotificationJobStore = (*NotificationJobStore)(nil)
	_ core.AuditLogStore        = (*AuditLogStore)(nil)
	_ core.StoreProvider        = (*RepositoryFactory)(nil)
)
