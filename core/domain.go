package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookEventStatus string

const (
	WebhookEventStatusReceived   WebhookEventStatus = "received"
	WebhookEventStatusProcessing WebhookEventStatus = "processing"
	WebhookEventStatusProcessed  WebhookEventStatus = "processed"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
)

// WebhookEvent is an inbound delivery stored on ingest. Events are unique by
// EventID when the sender provides one, otherwise by PayloadHash. Events are
// never deleted; processing only advances Status and ProcessedAt.
type WebhookEvent struct {
	ID          string
	EventID     string
	PayloadHash string
	EventType   string
	Verified    bool
	Status      WebhookEventStatus
	Payload     map[string]any
	RawBody     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type SyncJobStatus string

const (
	SyncJobStatusPending    SyncJobStatus = "pending"
	SyncJobStatusProcessing SyncJobStatus = "processing"
	SyncJobStatusCompleted  SyncJobStatus = "completed"
	SyncJobStatusFailed     SyncJobStatus = "failed"
)

func (s SyncJobStatus) Terminal() bool {
	return s == SyncJobStatusCompleted || s == SyncJobStatusFailed
}

const (
	EntityTypeSchedulingRequest = "scheduling_request"
	EntityTypeBooking           = "booking"
)

const SyncJobTypeNoteWriteback = "ats_note_writeback"

// SyncJob is a persisted retryable writeback. Payload carries everything the
// writeback service needs to replay the remote call.
type SyncJob struct {
	ID          string
	Type        string
	EntityID    string
	EntityType  string
	Attempts    int
	MaxAttempts int
	Status      SyncJobStatus
	LastError   string
	Payload     map[string]any
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (j SyncJob) Validate() error {
	if strings.TrimSpace(j.Type) == "" {
		return fmt.Errorf("core: sync job type is required")
	}
	if strings.TrimSpace(j.EntityID) == "" {
		return fmt.Errorf("core: sync job entity id is required")
	}
	switch strings.TrimSpace(j.EntityType) {
	case EntityTypeSchedulingRequest, EntityTypeBooking:
	default:
		return fmt.Errorf("core: invalid sync job entity type %q", j.EntityType)
	}
	return nil
}

type NotificationJobStatus string

const (
	NotificationJobStatusPending  NotificationJobStatus = "PENDING"
	NotificationJobStatusSending  NotificationJobStatus = "SENDING"
	NotificationJobStatusSent     NotificationJobStatus = "SENT"
	NotificationJobStatusFailed   NotificationJobStatus = "FAILED"
	NotificationJobStatusCanceled NotificationJobStatus = "CANCELED"
)

func (s NotificationJobStatus) Terminal() bool {
	switch s {
	case NotificationJobStatusSent, NotificationJobStatusFailed, NotificationJobStatusCanceled:
		return true
	}
	return false
}

// NotificationJob queues an outbound email with an idempotency key so the
// delivery collaborator can suppress duplicate sends across retries.
type NotificationJob struct {
	ID             string
	IdempotencyKey string
	ToEmail        string
	Template       string
	Attempts       int
	MaxAttempts    int
	Status         NotificationJobStatus
	LastError      string
	Payload        map[string]any
	RunAfter       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (j NotificationJob) Validate() error {
	if strings.TrimSpace(j.ToEmail) == "" {
		return fmt.Errorf("core: notification job recipient email is required")
	}
	if strings.TrimSpace(j.IdempotencyKey) == "" {
		return fmt.Errorf("core: notification job idempotency key is required")
	}
	return nil
}

// AuditEntry is an append-only operational record. Entries are write-once
// and never mutated.
type AuditEntry struct {
	ID        string
	Action    string
	ActorType string
	ActorID   string
	RequestID string
	BookingID string
	Payload   map[string]any
	CreatedAt time.Time
}

func (e AuditEntry) Validate() error {
	if strings.TrimSpace(e.Action) == "" {
		return fmt.Errorf("core: audit action is required")
	}
	if strings.TrimSpace(e.ActorType) == "" {
		return fmt.Errorf("core: audit actor type is required")
	}
	return nil
}

// TokenStatus reports token-cache state without side effects.
type TokenStatus struct {
	Valid            bool
	ExpiresAt        time.Time
	ExpiresInSeconds int64
}

// Application is the canonical flat applicant-tracking record, normalized
// from whichever response shape the remote API produced.
type Application struct {
	ID               string
	CandidateName    string
	CandidateEmail   string
	RequisitionID    string
	RequisitionTitle string
}
