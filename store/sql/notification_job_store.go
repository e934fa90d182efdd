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

type NotificationJobStore struct {
	db   *bun.DB
	repo repository.Repository[*notificationJobRecord]
}

func NewNotificationJobStore(db *bun.DB) (*NotificationJobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*notificationJobRecord](db, notificationJobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid notification job repository wiring: %w", err)
		}
	}
	return &NotificationJobStore{db: db, repo: repo}, nil
}

// Create enforces the idempotency-key unique index: re-enqueueing the same
// logical notification returns the stored job instead of inserting twice.
func (s *NotificationJobStore) Create(ctx context.Context, job core.NotificationJob) (core.NotificationJob, error) {
	if s == nil || s.db == nil {
		return core.NotificationJob{}, fmt.Errorf("sqlstore: notification job store is not configured")
	}
	if err := job.Validate(); err != nil {
		return core.NotificationJob{}, err
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = core.NotificationJobStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}
	job.UpdatedAt = now

	record := newNotificationJobRecord(job)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.getByIdempotencyKey(ctx, job.IdempotencyKey)
		}
		return core.NotificationJob{}, err
	}
	return record.toDomain(), nil
}

func (s *NotificationJobStore) Get(ctx context.Context, id string) (core.NotificationJob, error) {
	if s == nil || s.db == nil {
		return core.NotificationJob{}, fmt.Errorf("sqlstore: notification job store is not configured")
	}
	record := &notificationJobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.NotificationJob{}, fmt.Errorf("%w: id %q", core.ErrNotificationJobNotFound, id)
		}
		return core.NotificationJob{}, err
	}
	return record.toDomain(), nil
}

func (s *NotificationJobStore) Update(ctx context.Context, job core.NotificationJob) (core.NotificationJob, error) {
	if s == nil || s.db == nil {
		return core.NotificationJob{}, fmt.Errorf("sqlstore: notification job store is not configured")
	}
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return core.NotificationJob{}, fmt.Errorf("sqlstore: notification job id is required")
	}
	job.UpdatedAt = time.Now().UTC()

	record := newNotificationJobRecord(job)
	// terminal rows are immutable; the status filter stops a stale claimant
	// from reviving a SENT, FAILED or CANCELED job
	res, err := s.db.NewUpdate().
		Model(record).
		Where("id = ?", record.ID).
		Where("status <> ?", string(core.NotificationJobStatusSent)).
		Where("status <> ?", string(core.NotificationJobStatusFailed)).
		Where("status <> ?", string(core.NotificationJobStatusCanceled)).
		Exec(ctx)
	if err != nil {
		return core.NotificationJob{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return core.NotificationJob{}, err
	}
	if rows == 0 {
		existing, getErr := s.Get(ctx, job.ID)
		if getErr != nil {
			return core.NotificationJob{}, fmt.Errorf("%w: id %q", core.ErrNotificationJobNotFound, job.ID)
		}
		return core.NotificationJob{}, fmt.Errorf("sqlstore: notification job %s is %s and can no longer change", job.ID, existing.Status)
	}
	return record.toDomain(), nil
}

func (s *NotificationJobStore) ListPending(ctx context.Context, now time.Time, limit int) ([]core.NotificationJob, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: notification job store is not configured")
	}
	if limit < 1 {
		return nil, fmt.Errorf("sqlstore: list limit must be at least 1")
	}
	var records []*notificationJobRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.NotificationJobStatusPending)).
		Where("?TableAlias.run_after <= ?", now.UTC()).
		Order("run_after ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]core.NotificationJob, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, record.toDomain())
	}
	return jobs, nil
}

func (s *NotificationJobStore) ClaimPending(ctx context.Context, id string, now time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: notification job store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("sqlstore: notification job id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*notificationJobRecord)(nil)).
		Set("status = ?", string(core.NotificationJobStatusSending)).
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", id).
		Where("status = ?", string(core.NotificationJobStatusPending)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *NotificationJobStore) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: notification job store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*notificationJobRecord)(nil)).
		Set("status = ?", string(core.NotificationJobStatusPending)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", string(core.NotificationJobStatusSending)).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *NotificationJobStore) getByIdempotencyKey(ctx context.Context, key string) (core.NotificationJob, error) {
	record := &notificationJobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.idempotency_key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.NotificationJob{}, fmt.Errorf("%w: idempotency key %q", core.ErrNotificationJobNotFound, key)
		}
		return core.NotificationJob{}, err
	}
	return record.toDomain(), nil
}
