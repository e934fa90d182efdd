package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrWebhookEventNotFound    = errors.New("core: webhook event not found")
	ErrSyncJobNotFound         = errors.New("core: sync job not found")
	ErrNotificationJobNotFound = errors.New("core: notification job not found")
)

// WebhookEventStore persists inbound deliveries. Lookups back the dedup
// paths: by external event id first, by canonical payload hash otherwise.
type WebhookEventStore interface {
	Create(ctx context.Context, event WebhookEvent) (WebhookEvent, error)
	GetByEventID(ctx context.Context, eventID string) (WebhookEvent, error)
	GetByPayloadHash(ctx context.Context, payloadHash string) (WebhookEvent, error)
	UpdateStatus(ctx context.Context, id string, status WebhookEventStatus, processedAt *time.Time) error
}

// SyncJobStore persists retryable writeback jobs. ClaimPending is the
// serialization point for a job: it must be an atomic conditional update of
// pending to processing so overlapping worker cycles never double-process.
type SyncJobStore interface {
	Create(ctx context.Context, job SyncJob) (SyncJob, error)
	Get(ctx context.Context, id string) (SyncJob, error)
	Update(ctx context.Context, job SyncJob) (SyncJob, error)
	ListPending(ctx context.Context, now time.Time, limit int) ([]SyncJob, error)
	ClaimPending(ctx context.Context, id string, now time.Time) (bool, error)
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)
}

// NotificationJobStore mirrors SyncJobStore for the notification queue.
// Claiming moves PENDING to SENDING; CANCELED jobs are never listed.
type NotificationJobStore interface {
	Create(ctx context.Context, job NotificationJob) (NotificationJob, error)
	Get(ctx context.Context, id string) (NotificationJob, error)
	Update(ctx context.Context, job NotificationJob) (NotificationJob, error)
	ListPending(ctx context.Context, now time.Time, limit int) ([]NotificationJob, error)
	ClaimPending(ctx context.Context, id string, now time.Time) (bool, error)
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)
}

type AuditLogStore interface {
	Append(ctx context.Context, entry AuditEntry) (AuditEntry, error)
}

// StoreProvider hands the assembled stores to the facade; satisfied by the
// sqlstore repository factory and by the in-memory stores.
type StoreProvider interface {
	WebhookEvents() WebhookEventStore
	SyncJobs() SyncJobStore
	NotificationJobs() NotificationJobStore
	AuditLog() AuditLogStore
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NotificationSender delivers a claimed notification job. Implementations
// must treat the job's idempotency key as the duplicate-suppression token.
type NotificationSender interface {
	Send(ctx context.Context, job NotificationJob) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// JobExecutionMessage is the queue-runner contract the gojob adapter maps
// onto go-job execution messages.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

// JobNackOptions describes how a failed queue delivery should be retried.
type JobNackOptions struct {
	Requeue    bool
	DeadLetter bool
	Delay      time.Duration
	Reason     string
}
