package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-schedsync/core"
)

func newWebhookEventRecord(event core.WebhookEvent) *webhookEventRecord {
	return &webhookEventRecord{
		ID:          strings.TrimSpace(event.ID),
		EventID:     strings.TrimSpace(event.EventID),
		PayloadHash: strings.TrimSpace(event.PayloadHash),
		EventType:   strings.TrimSpace(event.EventType),
		Verified:    event.Verified,
		Status:      string(event.Status),
		Payload:     copyAnyMap(event.Payload),
		RawBody:     append([]byte(nil), event.RawBody...),
		CreatedAt:   event.CreatedAt,
		ProcessedAt: copyTimePtr(event.ProcessedAt),
	}
}

func (r *webhookEventRecord) toDomain() core.WebhookEvent {
	if r == nil {
		return core.WebhookEvent{}
	}
	return core.WebhookEvent{
		ID:          r.ID,
		EventID:     r.EventID,
		PayloadHash: r.PayloadHash,
		EventType:   r.EventType,
		Verified:    r.Verified,
		Status:      core.WebhookEventStatus(r.Status),
		Payload:     copyAnyMap(r.Payload),
		RawBody:     append([]byte(nil), r.RawBody...),
		CreatedAt:   r.CreatedAt,
		ProcessedAt: copyTimePtr(r.ProcessedAt),
	}
}

func newSyncJobRecord(job core.SyncJob) *syncJobRecord {
	return &syncJobRecord{
		ID:          strings.TrimSpace(job.ID),
		Type:        strings.TrimSpace(job.Type),
		EntityID:    strings.TrimSpace(job.EntityID),
		EntityType:  strings.TrimSpace(job.EntityType),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Status:      string(job.Status),
		LastError:   job.LastError,
		Payload:     copyAnyMap(job.Payload),
		RunAfter:    job.RunAfter,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

func (r *syncJobRecord) toDomain() core.SyncJob {
	if r == nil {
		return core.SyncJob{}
	}
	return core.SyncJob{
		ID:          r.ID,
		Type:        r.Type,
		EntityID:    r.EntityID,
		EntityType:  r.EntityType,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		Status:      core.SyncJobStatus(r.Status),
		LastError:   r.LastError,
		Payload:     copyAnyMap(r.Payload),
		RunAfter:    r.RunAfter,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newNotificationJobRecord(job core.NotificationJob) *notificationJobRecord {
	return &notificationJobRecord{
		ID:             strings.TrimSpace(job.ID),
		IdempotencyKey: strings.TrimSpace(job.IdempotencyKey),
		ToEmail:        strings.TrimSpace(job.ToEmail),
		Template:       strings.TrimSpace(job.Template),
		Attempts:       job.Attempts,
		MaxAttempts:    job.MaxAttempts,
		Status:         string(job.Status),
		LastError:      job.LastError,
		Payload:        copyAnyMap(job.Payload),
		RunAfter:       job.RunAfter,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

func (r *notificationJobRecord) toDomain() core.NotificationJob {
	if r == nil {
		return core.NotificationJob{}
	}
	return core.NotificationJob{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		ToEmail:        r.ToEmail,
		Template:       r.Template,
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		Status:         core.NotificationJobStatus(r.Status),
		LastError:      r.LastError,
		Payload:        copyAnyMap(r.Payload),
		RunAfter:       r.RunAfter,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newAuditEntryRecord(entry core.AuditEntry) *auditEntryRecord {
	return &auditEntryRecord{
		ID:        strings.TrimSpace(entry.ID),
		Action:    strings.TrimSpace(entry.Action),
		ActorType: strings.TrimSpace(entry.ActorType),
		ActorID:   strings.TrimSpace(entry.ActorID),
		RequestID: strings.TrimSpace(entry.RequestID),
		BookingID: strings.TrimSpace(entry.BookingID),
		Payload:   copyAnyMap(entry.Payload),
		CreatedAt: entry.CreatedAt,
	}
}

func (r *auditEntryRecord) toDomain() core.AuditEntry {
	if r == nil {
		return core.AuditEntry{}
	}
	return core.AuditEntry{
		ID:        r.ID,
		Action:    r.Action,
		ActorType: r.ActorType,
		ActorID:   r.ActorID,
		RequestID: r.RequestID,
		BookingID: r.BookingID,
		Payload:   copyAnyMap(r.Payload),
		CreatedAt: r.CreatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
