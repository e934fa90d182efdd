package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:schedsync_webhook_events,alias:swe"`

	ID          string         `bun:"id,pk"`
	EventID     string         `bun:"event_id"`
	PayloadHash string         `bun:"payload_hash,notnull"`
	EventType   string         `bun:"event_type,notnull"`
	Verified    bool           `bun:"verified,notnull"`
	Status      string         `bun:"status,notnull"`
	Payload     map[string]any `bun:"payload,type:jsonb,notnull"`
	RawBody     []byte         `bun:"raw_body"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ProcessedAt *time.Time     `bun:"processed_at,nullzero"`
}

type syncJobRecord struct {
	bun.BaseModel `bun:"table:schedsync_sync_jobs,alias:ssj"`

	ID          string         `bun:"id,pk"`
	Type        string         `bun:"type,notnull"`
	EntityID    string         `bun:"entity_id,notnull"`
	EntityType  string         `bun:"entity_type,notnull"`
	Attempts    int            `bun:"attempts,notnull"`
	MaxAttempts int            `bun:"max_attempts,notnull"`
	Status      string         `bun:"status,notnull"`
	LastError   string         `bun:"last_error"`
	Payload     map[string]any `bun:"payload,type:jsonb,notnull"`
	RunAfter    time.Time      `bun:"run_after,nullzero,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type notificationJobRecord struct {
	bun.BaseModel `bun:"table:schedsync_notification_jobs,alias:snj"`

	ID             string         `bun:"id,pk"`
	IdempotencyKey string         `bun:"idempotency_key,notnull"`
	ToEmail        string         `bun:"to_email,notnull"`
	Template       string         `bun:"template,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	MaxAttempts    int            `bun:"max_attempts,notnull"`
	Status         string         `bun:"status,notnull"`
	LastError      string         `bun:"last_error"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	RunAfter       time.Time      `bun:"run_after,nullzero,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditEntryRecord struct {
	bun.BaseModel `bun:"table:schedsync_audit_log,alias:sal"`

	ID        string         `bun:"id,pk"`
	Action    string         `bun:"action,notnull"`
	ActorType string         `bun:"actor_type,notnull"`
	ActorID   string         `bun:"actor_id"`
	RequestID string         `bun:"request_id"`
	BookingID string         `bun:"booking_id"`
	Payload   map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
