// Package sqlstore persists the scheduling-sync domain on bun. Stores keep
// the same semantics as the in-memory implementations in core; the queue
// stores add the conditional-update claim that makes concurrent worker
// cycles safe.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-schedsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type WebhookEventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
}

func NewWebhookEventStore(db *bun.DB) (*WebhookEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook event repository wiring: %w", err)
		}
	}
	return &WebhookEventStore{db: db, repo: repo}, nil
}

func (s *WebhookEventStore) Create(ctx context.Context, event core.WebhookEvent) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	if strings.TrimSpace(event.PayloadHash) == "" {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event payload hash is required")
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = core.WebhookEventStatusReceived
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	record := newWebhookEventRecord(event)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		// a concurrent delivery won the insert race; the unique indexes
		// on event_id and payload_hash turn the loser into a dedup
		if isUniqueViolation(err) {
			if event.EventID != "" {
				return s.GetByEventID(ctx, event.EventID)
			}
			return s.GetByPayloadHash(ctx, event.PayloadHash)
		}
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookEventStore) GetByEventID(ctx context.Context, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event id is required")
	}
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookEvent{}, fmt.Errorf("%w: event id %q", core.ErrWebhookEventNotFound, eventID)
		}
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookEventStore) GetByPayloadHash(ctx context.Context, payloadHash string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	payloadHash = strings.TrimSpace(payloadHash)
	if payloadHash == "" {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: payload hash is required")
	}
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ''").
		Where("?TableAlias.payload_hash = ?", payloadHash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookEvent{}, fmt.Errorf("%w: payload hash %q", core.ErrWebhookEventNotFound, payloadHash)
		}
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookEventStore) UpdateStatus(
	ctx context.Context,
	id string,
	status core.WebhookEventStatus,
	processedAt *time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: webhook event id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(status)).
		Set("processed_at = ?", processedAt).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: id %q", core.ErrWebhookEventNotFound, id)
	}
	return nil
}
