package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-schedsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AuditLogStore struct {
	db   *bun.DB
	repo repository.Repository[*auditEntryRecord]
}

func NewAuditLogStore(db *bun.DB) (*AuditLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditEntryRecord](db, auditEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit log repository wiring: %w", err)
		}
	}
	return &AuditLogStore{db: db, repo: repo}, nil
}

func (s *AuditLogStore) Append(ctx context.Context, entry core.AuditEntry) (core.AuditEntry, error) {
	if s == nil || s.db == nil {
		return core.AuditEntry{}, fmt.Errorf("sqlstore: audit log store is not configured")
	}
	if err := entry.Validate(); err != nil {
		return core.AuditEntry{}, err
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	record := newAuditEntryRecord(entry)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.AuditEntry{}, err
	}
	return record.toDomain(), nil
}
