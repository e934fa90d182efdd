// Package worker drains the persisted job queues. Each cycle reclaims stale
// leases, claims eligible jobs one at a time and applies the backoff table
// to failures until a job completes or exhausts its attempt budget.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-schedsync/core"
	"github.com/goliatone/go-schedsync/writeback"
)

const (
	defaultBatchLimit  = 25
	defaultStaleLease  = 10 * time.Minute
	defaultMaxAttempts = 5
)

// JobRetrier replays the remote side effect a sync job describes.
type JobRetrier interface {
	RetryJob(ctx context.Context, job core.SyncJob) writeback.Result
}

type Config struct {
	Jobs          core.SyncJobStore
	Notifications core.NotificationJobStore
	Retrier       JobRetrier
	Sender        core.NotificationSender
	Logger        core.Logger
	Metrics       core.MetricsRecorder
	Now           func() time.Time
	BatchLimit    int
	// StaleLease bounds how long a processing claim may sit before another
	// cycle assumes the claimant died and reclaims the job.
	StaleLease  time.Duration
	MaxAttempts int
}

// BatchSummary reports one queue cycle.
type BatchSummary struct {
	Reclaimed int
	Claimed   int
	Completed int
	Retried   int
	Exhausted int
	Skipped   int
}

type Worker struct {
	config Config
}

func New(cfg Config) (*Worker, error) {
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("worker: sync job store is required")
	}
	if cfg.Retrier == nil {
		return nil, fmt.Errorf("worker: job retrier is required")
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	if cfg.StaleLease <= 0 {
		cfg.StaleLease = defaultStaleLease
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Metrics == nil {
		cfg.Metrics = core.NopMetricsRecorder{}
	}
	return &Worker{config: cfg}, nil
}

// ProcessBatch runs one sync-job cycle. Claims are serialized through the
// store's conditional update, so overlapping cycles never double-process a
// job; losing a claim counts as a skip, not an error.
func (w *Worker) ProcessBatch(ctx context.Context) (BatchSummary, error) {
	var summary BatchSummary
	now := w.config.Now().UTC()

	reclaimed, err := w.config.Jobs.ReclaimStale(ctx, now.Add(-w.config.StaleLease))
	if err != nil {
		return summary, fmt.Errorf("worker: reclaim stale sync jobs: %w", err)
	}
	summary.Reclaimed = reclaimed

	pending, err := w.config.Jobs.ListPending(ctx, now, w.config.BatchLimit)
	if err != nil {
		return summary, fmt.Errorf("worker: list pending sync jobs: %w", err)
	}

	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		claimed, err := w.config.Jobs.ClaimPending(ctx, job.ID, now)
		if err != nil {
			return summary, fmt.Errorf("worker: claim sync job %s: %w", job.ID, err)
		}
		if !claimed {
			summary.Skipped++
			continue
		}
		summary.Claimed++

		if err := w.runJob(ctx, job, now, &summary); err != nil {
			return summary, err
		}
	}

	w.config.Metrics.IncCounter(ctx, "schedsync.worker.jobs_completed", int64(summary.Completed), nil)
	w.config.Metrics.IncCounter(ctx, "schedsync.worker.jobs_exhausted", int64(summary.Exhausted), nil)
	return summary, nil
}

func (w *Worker) runJob(ctx context.Context, job core.SyncJob, now time.Time, summary *BatchSummary) error {
	job.Status = core.SyncJobStatusProcessing
	job.Attempts++

	result := w.config.Retrier.RetryJob(ctx, job)
	if result.Success {
		job.Status = core.SyncJobStatusCompleted
		job.LastError = ""
		if _, err := w.config.Jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("worker: complete sync job %s: %w", job.ID, err)
		}
		summary.Completed++
		return nil
	}

	job.LastError = result.Err
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.config.MaxAttempts
	}

	if job.Attempts >= maxAttempts {
		job.Status = core.SyncJobStatusFailed
		job.LastError = core.NewJobExhaustedError(result.Err).Error()
		if _, err := w.config.Jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("worker: fail sync job %s: %w", job.ID, err)
		}
		summary.Exhausted++
		w.logError(ctx, "sync job exhausted its attempts", map[string]any{
			"job_id":   job.ID,
			"attempts": job.Attempts,
			"error":    job.LastError,
		})
		return nil
	}

	job.Status = core.SyncJobStatusPending
	job.RunAfter = writeback.NextRunAfter(job.Attempts, now)
	if _, err := w.config.Jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("worker: reschedule sync job %s: %w", job.ID, err)
	}
	summary.Retried++
	return nil
}

// NotificationCycle drains the notification queue the same way ProcessBatch
// drains sync jobs: claim PENDING to SENDING, deliver, then mark SENT or
// reschedule with backoff until the attempt budget runs out.
func (w *Worker) NotificationCycle(ctx context.Context) (BatchSummary, error) {
	var summary BatchSummary
	if w.config.Notifications == nil || w.config.Sender == nil {
		return summary, fmt.Errorf("worker: notification store and sender are required")
	}
	now := w.config.Now().UTC()

	reclaimed, err := w.config.Notifications.ReclaimStale(ctx, now.Add(-w.config.StaleLease))
	if err != nil {
		return summary, fmt.Errorf("worker: reclaim stale notification jobs: %w", err)
	}
	summary.Reclaimed = reclaimed

	pending, err := w.config.Notifications.ListPending(ctx, now, w.config.BatchLimit)
	if err != nil {
		return summary, fmt.Errorf("worker: list pending notification jobs: %w", err)
	}

	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		claimed, err := w.config.Notifications.ClaimPending(ctx, job.ID, now)
		if err != nil {
			return summary, fmt.Errorf("worker: claim notification job %s: %w", job.ID, err)
		}
		if !claimed {
			summary.Skipped++
			continue
		}
		summary.Claimed++

		if err := w.runNotification(ctx, job, now, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (w *Worker) runNotification(ctx context.Context, job core.NotificationJob, now time.Time, summary *BatchSummary) error {
	job.Status = core.NotificationJobStatusSending
	job.Attempts++

	sendErr := w.config.Sender.Send(ctx, job)
	if sendErr == nil {
		job.Status = core.NotificationJobStatusSent
		job.LastError = ""
		if _, err := w.config.Notifications.Update(ctx, job); err != nil {
			return fmt.Errorf("worker: complete notification job %s: %w", job.ID, err)
		}
		summary.Completed++
		return nil
	}

	job.LastError = sendErr.Error()
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.config.MaxAttempts
	}

	if job.Attempts >= maxAttempts {
		job.Status = core.NotificationJobStatusFailed
		job.LastError = core.NewJobExhaustedError(sendErr.Error()).Error()
		if _, err := w.config.Notifications.Update(ctx, job); err != nil {
			return fmt.Errorf("worker: fail notification job %s: %w", job.ID, err)
		}
		summary.Exhausted++
		w.logError(ctx, "notification job exhausted its attempts", map[string]any{
			"job_id":   job.ID,
			"attempts": job.Attempts,
			"error":    job.LastError,
		})
		return nil
	}

	job.Status = core.NotificationJobStatusPending
	job.RunAfter = writeback.NextRunAfter(job.Attempts, now)
	if _, err := w.config.Notifications.Update(ctx, job); err != nil {
		return fmt.Errorf("worker: reschedule notification job %s: %w", job.ID, err)
	}
	summary.Retried++
	return nil
}

func (w *Worker) logError(ctx context.Context, message string, fields map[string]any) {
	if w.config.Logger == nil {
		return
	}
	logger := w.config.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	logger.Error(message)
}
