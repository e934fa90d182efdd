package core

import glog "github.com/goliatone/go-logger/glog"

// Keeps the logger contract aligned with go-logger across upgrades.
var (
	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)

var (
	_ WebhookEventStore    = (*MemoryWebhookEventStore)(nil)
	_ SyncJobStore         = (*MemorySyncJobStore)(nil)
	_ NotificationJobStore = (*MemoryNotificationJobStore)(nil)
	_ AuditLogStore        = (*MemoryAuditLogStore)(nil)
)
