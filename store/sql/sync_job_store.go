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

type SyncJobStore struct {
	db   *bun.DB
	repo repository.Repository[*syncJobRecord]
}

func NewSyncJobStore(db *bun.DB) (*SyncJobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncJobRecord](db, syncJobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync job repository wiring: %w", err)
		}
	}
	return &SyncJobStore{db: db, repo: repo}, nil
}

func (s *SyncJobStore) Create(ctx context.Context, job core.SyncJob) (core.SyncJob, error) {
	if s == nil || s.db == nil {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	if err := job.Validate(); err != nil {
		return core.SyncJob{}, err
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = core.SyncJobStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}
	job.UpdatedAt = now

	record := newSyncJobRecord(job)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.SyncJob{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncJobStore) Get(ctx context.Context, id string) (core.SyncJob, error) {
	if s == nil || s.db == nil {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	record := &syncJobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.SyncJob{}, fmt.Errorf("%w: id %q", core.ErrSyncJobNotFound, id)
		}
		return core.SyncJob{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncJobStore) Update(ctx context.Context, job core.SyncJob) (core.SyncJob, error) {
	if s == nil || s.db == nil {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job id is required")
	}
	job.UpdatedAt = time.Now().UTC()

	record := newSyncJobRecord(job)
	// terminal rows are immutable; the status filter stops a stale claimant
	// from reviving a completed or failed job
	res, err := s.db.NewUpdate().
		Model(record).
		Where("id = ?", record.ID).
		Where("status <> ?", string(core.SyncJobStatusCompleted)).
		Where("status <> ?", string(core.SyncJobStatusFailed)).
		Exec(ctx)
	if err != nil {
		return core.SyncJob{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return core.SyncJob{}, err
	}
	if rows == 0 {
		existing, getErr := s.Get(ctx, job.ID)
		if getErr != nil {
			return core.SyncJob{}, fmt.Errorf("%w: id %q", core.ErrSyncJobNotFound, job.ID)
		}
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job %s is %s and can no longer change", job.ID, existing.Status)
	}
	return record.toDomain(), nil
}

func (s *SyncJobStore) ListPending(ctx context.Context, now time.Time, limit int) ([]core.SyncJob, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	if limit < 1 {
		return nil, fmt.Errorf("sqlstore: list limit must be at least 1")
	}
	var records []*syncJobRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.SyncJobStatusPending)).
		Where("?TableAlias.run_after <= ?", now.UTC()).
		Order("run_after ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]core.SyncJob, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, record.toDomain())
	}
	return jobs, nil
}

// ClaimPending is a conditional update of pending to processing. Claiming
// races resolve through RowsAffected: exactly one claimant observes 1.
func (s *SyncJobStore) ClaimPending(ctx context.Context, id string, now time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("sqlstore: sync job id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*syncJobRecord)(nil)).
		Set("status = ?", string(core.SyncJobStatusProcessing)).
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", id).
		Where("status = ?", string(core.SyncJobStatusPending)).
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

func (s *SyncJobStore) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*syncJobRecord)(nil)).
		Set("status = ?", string(core.SyncJobStatusPending)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", string(core.SyncJobStatusProcessing)).
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
