// Package writeback mirrors scheduling activity back into the
// applicant-tracking system as notes. Remote failures never bubble to the
// caller: the failed write becomes a persisted sync job that the worker
// replays on a backoff schedule.
package writeback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-schedsync/core"
)

const (
	OperationLinkCreated = "ats_link_note"
	OperationBooked      = "ats_booked_note"
	OperationCancelled   = "ats_cancelled_note"

	AuditActionJobCreated = "sync_job_created"

	auditActorSystem = "system"

	payloadKeyOperation     = "operation"
	payloadKeyApplicationID = "application_id"
	payloadKeyNote          = "note"

	defaultJobMaxAttempts = 5
)

// NoteWriter is the slice of the ATS client the writeback service needs.
type NoteWriter interface {
	AddApplicationNote(ctx context.Context, id string, note string) error
}

type LinkCreatedNote struct {
	ApplicationID  string
	RequestID      string
	CandidateName  string
	SchedulingLink string
}

type BookedNote struct {
	ApplicationID string
	BookingID     string
	CandidateName string
	StartsAt      time.Time
	EndsAt        time.Time
}

type CancelledNote struct {
	ApplicationID string
	BookingID     string
	Reason        string
}

// Result reports one writeback attempt. Success false with a SyncJobID means
// the remote write failed but a replay job is queued.
type Result struct {
	Success   bool
	Skipped   bool
	Err       string
	SyncJobID string
}

type Service struct {
	writer         NoteWriter
	jobs           core.SyncJobStore
	audit          core.AuditLogStore
	logger         core.Logger
	now            func() time.Time
	jobMaxAttempts int
}

func NewService(writer NoteWriter, jobs core.SyncJobStore, audit core.AuditLogStore, options ...ServiceOption) (*Service, error) {
	if writer == nil {
		return nil, fmt.Errorf("writeback: note writer is required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("writeback: sync job store is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("writeback: audit log store is required")
	}
	service := &Service{
		writer:         writer,
		jobs:           jobs,
		audit:          audit,
		now:            func() time.Time { return time.Now().UTC() },
		jobMaxAttempts: defaultJobMaxAttempts,
	}
	for _, option := range options {
		option(service)
	}
	return service, nil
}

type ServiceOption func(*Service)

func WithLogger(logger core.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithJobMaxAttempts(max int) ServiceOption {
	return func(s *Service) {
		if max > 0 {
			s.jobMaxAttempts = max
		}
	}
}

// WriteLinkCreatedNote records that a scheduling link went out to the
// candidate. Requests without an application id are a no-op success; not
// every scheduling request originates in the ATS.
func (s *Service) WriteLinkCreatedNote(ctx context.Context, note LinkCreatedNote) Result {
	text := fmt.Sprintf("Scheduling link sent to %s: %s", valueOr(note.CandidateName, "candidate"), note.SchedulingLink)
	return s.write(ctx, writeRequest{
		operation:     OperationLinkCreated,
		applicationID: note.ApplicationID,
		entityType:    core.EntityTypeSchedulingRequest,
		entityID:      note.RequestID,
		note:          text,
	})
}

// WriteBookedNote records a confirmed interview slot.
func (s *Service) WriteBookedNote(ctx context.Context, note BookedNote) Result {
	text := fmt.Sprintf(
		"Interview booked for %s: %s to %s",
		valueOr(note.CandidateName, "candidate"),
		note.StartsAt.UTC().Format(time.RFC3339),
		note.EndsAt.UTC().Format(time.RFC3339),
	)
	return s.write(ctx, writeRequest{
		operation:     OperationBooked,
		applicationID: note.ApplicationID,
		entityType:    core.EntityTypeBooking,
		entityID:      note.BookingID,
		note:          text,
	})
}

// WriteCancelledNote records a cancellation, with the reason when one was
// given.
func (s *Service) WriteCancelledNote(ctx context.Context, note CancelledNote) Result {
	text := "Interview cancelled"
	if reason := strings.TrimSpace(note.Reason); reason != "" {
		text = fmt.Sprintf("Interview cancelled: %s", reason)
	}
	return s.write(ctx, writeRequest{
		operation:     OperationCancelled,
		applicationID: note.ApplicationID,
		entityType:    core.EntityTypeBooking,
		entityID:      note.BookingID,
		note:          text,
	})
}

// RetryJob replays the remote write a persisted job describes. It never
// mutates the job; status and attempt bookkeeping belong to the worker.
func (s *Service) RetryJob(ctx context.Context, job core.SyncJob) Result {
	applicationID, _ := job.Payload[payloadKeyApplicationID].(string)
	noteText, _ := job.Payload[payloadKeyNote].(string)
	if strings.TrimSpace(applicationID) == "" || strings.TrimSpace(noteText) == "" {
		return Result{Err: fmt.Sprintf("sync job %s payload is missing application_id or note", job.ID)}
	}
	if err := s.writer.AddApplicationNote(ctx, applicationID, noteText); err != nil {
		return Result{Err: err.Error()}
	}
	return Result{Success: true}
}

type writeRequest struct {
	operation     string
	applicationID string
	entityType    string
	entityID      string
	note          string
}

func (s *Service) write(ctx context.Context, req writeRequest) Result {
	applicationID := strings.TrimSpace(req.applicationID)
	if applicationID == "" {
		return Result{Success: true, Skipped: true}
	}

	s.auditOp(ctx, req, req.operation+"_attempt", nil)

	err := s.writer.AddApplicationNote(ctx, applicationID, req.note)
	if err == nil {
		s.auditOp(ctx, req, req.operation+"_success", nil)
		return Result{Success: true}
	}
	s.auditOp(ctx, req, req.operation+"_failed", map[string]any{"error": err.Error()})

	job, jobErr := s.enqueueRetry(ctx, req, err)
	if jobErr != nil {
		s.logError(ctx, "writeback retry job enqueue failed", map[string]any{
			"operation": req.operation,
			"error":     jobErr.Error(),
		})
		return Result{Err: err.Error()}
	}
	s.auditOp(ctx, req, AuditActionJobCreated, map[string]any{"sync_job_id": job.ID})
	return Result{Err: err.Error(), SyncJobID: job.ID}
}

func (s *Service) enqueueRetry(ctx context.Context, req writeRequest, cause error) (core.SyncJob, error) {
	now := s.now().UTC()
	return s.jobs.Create(ctx, core.SyncJob{
		Type:        core.SyncJobTypeNoteWriteback,
		EntityID:    req.entityID,
		EntityType:  req.entityType,
		MaxAttempts: s.jobMaxAttempts,
		Status:      core.SyncJobStatusPending,
		LastError:   cause.Error(),
		Payload: map[string]any{
			payloadKeyOperation:     req.operation,
			payloadKeyApplicationID: req.applicationID,
			payloadKeyNote:          req.note,
		},
		RunAfter:  now,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *Service) auditOp(ctx context.Context, req writeRequest, action string, extra map[string]any) {
	payload := map[string]any{
		"operation":      req.operation,
		"application_id": req.applicationID,
		"entity_type":    req.entityType,
		"entity_id":      req.entityID,
	}
	for k, v := range extra {
		payload[k] = v
	}
	entry := core.AuditEntry{
		Action:    action,
		ActorType: auditActorSystem,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
	if req.entityType == core.EntityTypeBooking {
		entry.BookingID = req.entityID
	} else {
		entry.RequestID = req.entityID
	}
	if _, err := s.audit.Append(ctx, entry); err != nil {
		s.logError(ctx, "audit append failed", map[string]any{
			"action": action,
			"error":  err.Error(),
		})
	}
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	if s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	logger.Error(message)
}

func valueOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
