package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStores implements every store contract in memory. It backs the
// single-process/embedded deployment mode and the package tests; durability
// comes from the SQL stores.
type MemoryStores struct {
	webhookEvents    *MemoryWebhookEventStore
	syncJobs         *MemorySyncJobStore
	notificationJobs *MemoryNotificationJobStore
	auditLog         *MemoryAuditLogStore
}

func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		webhookEvents:    NewMemoryWebhookEventStore(),
		syncJobs:         NewMemorySyncJobStore(),
		notificationJobs: NewMemoryNotificationJobStore(),
		auditLog:         NewMemoryAuditLogStore(),
	}
}

func (s *MemoryStores) WebhookEvents() WebhookEventStore { return s.webhookEvents }

func (s *MemoryStores) SyncJobs() SyncJobStore { return s.syncJobs }

func (s *MemoryStores) NotificationJobs() NotificationJobStore { return s.notificationJobs }

func (s *MemoryStores) AuditLog() AuditLogStore { return s.auditLog }

var _ StoreProvider = (*MemoryStores)(nil)

type MemoryWebhookEventStore struct {
	mu     sync.RWMutex
	events map[string]WebhookEvent
}

func NewMemoryWebhookEventStore() *MemoryWebhookEventStore {
	return &MemoryWebhookEventStore{events: map[string]WebhookEvent{}}
}

func (s *MemoryWebhookEventStore) Create(_ context.Context, event WebhookEvent) (WebhookEvent, error) {
	if s == nil {
		return WebhookEvent{}, fmt.Errorf("core: webhook event store is not configured")
	}
	if strings.TrimSpace(event.PayloadHash) == "" {
		return WebhookEvent{}, fmt.Errorf("core: webhook event payload hash is required")
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = WebhookEventStatusReceived
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Payload = copyAnyMap(event.Payload)
	event.RawBody = append([]byte(nil), event.RawBody...)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if event.EventID != "" && existing.EventID == event.EventID {
			return WebhookEvent{}, fmt.Errorf("core: webhook event %q already exists", event.EventID)
		}
		if event.EventID == "" && existing.EventID == "" && existing.PayloadHash == event.PayloadHash {
			return WebhookEvent{}, fmt.Errorf("core: webhook event with payload hash %q already exists", event.PayloadHash)
		}
	}
	s.events[event.ID] = event
	return event, nil
}

func (s *MemoryWebhookEventStore) GetByEventID(_ context.Context, eventID string) (WebhookEvent, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return WebhookEvent{}, fmt.Errorf("core: event id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, event := range s.events {
		if event.EventID == eventID {
			return event, nil
		}
	}
	return WebhookEvent{}, fmt.Errorf("%w: event id %q", ErrWebhookEventNotFound, eventID)
}

func (s *MemoryWebhookEventStore) GetByPayloadHash(_ context.Context, payloadHash string) (WebhookEvent, error) {
	payloadHash = strings.TrimSpace(payloadHash)
	if payloadHash == "" {
		return WebhookEvent{}, fmt.Errorf("core: payload hash is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, event := range s.events {
		if event.EventID == "" && event.PayloadHash == payloadHash {
			return event, nil
		}
	}
	return WebhookEvent{}, fmt.Errorf("%w: payload hash %q", ErrWebhookEventNotFound, payloadHash)
}

func (s *MemoryWebhookEventStore) UpdateStatus(
	_ context.Context,
	id string,
	status WebhookEventStatus,
	processedAt *time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: id %q", ErrWebhookEventNotFound, id)
	}
	event.Status = status
	event.ProcessedAt = processedAt
	s.events[event.ID] = event
	return nil
}

type MemorySyncJobStore struct {
	mu   sync.RWMutex
	jobs map[string]SyncJob
}

func NewMemorySyncJobStore() *MemorySyncJobStore {
	return &MemorySyncJobStore{jobs: map[string]SyncJob{}}
}

func (s *MemorySyncJobStore) Create(_ context.Context, job SyncJob) (SyncJob, error) {
	if err := job.Validate(); err != nil {
		return SyncJob{}, err
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = SyncJobStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.Payload = copyAnyMap(job.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job, nil
}

func (s *MemorySyncJobStore) Get(_ context.Context, id string) (SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return SyncJob{}, fmt.Errorf("%w: id %q", ErrSyncJobNotFound, id)
	}
	return job, nil
}

func (s *MemorySyncJobStore) Update(_ context.Context, job SyncJob) (SyncJob, error) {
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return SyncJob{}, fmt.Errorf("core: sync job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[job.ID]
	if !ok {
		return SyncJob{}, fmt.Errorf("%w: id %q", ErrSyncJobNotFound, job.ID)
	}
	// completed and failed are final; a late retry must not revive the job
	if existing.Status.Terminal() {
		return SyncJob{}, fmt.Errorf("core: sync job %s is %s and can no longer change", job.ID, existing.Status)
	}
	job.CreatedAt = existing.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	job.Payload = copyAnyMap(job.Payload)
	s.jobs[job.ID] = job
	return job, nil
}

func (s *MemorySyncJobStore) ListPending(_ context.Context, now time.Time, limit int) ([]SyncJob, error) {
	if limit < 1 {
		return nil, fmt.Errorf("core: list limit must be at least 1")
	}
	s.mu.RLock()
	eligible := make([]SyncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Status == SyncJobStatusPending && !job.RunAfter.After(now) {
			eligible = append(eligible, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].RunAfter.Before(eligible[j].RunAfter)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

func (s *MemorySyncJobStore) ClaimPending(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return false, fmt.Errorf("%w: id %q", ErrSyncJobNotFound, id)
	}
	if job.Status != SyncJobStatusPending {
		return false, nil
	}
	job.Status = SyncJobStatusProcessing
	job.UpdatedAt = now.UTC()
	s.jobs[job.ID] = job
	return true, nil
}

func (s *MemorySyncJobStore) ReclaimStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reclaimed := 0
	for id, job := range s.jobs {
		if job.Status == SyncJobStatusProcessing && job.UpdatedAt.Before(cutoff) {
			job.Status = SyncJobStatusPending
			job.UpdatedAt = time.Now().UTC()
			s.jobs[id] = job
			reclaimed++
		}
	}
	return reclaimed, nil
}

type MemoryNotificationJobStore struct {
	mu   sync.RWMutex
	jobs map[string]NotificationJob
}

func NewMemoryNotificationJobStore() *MemoryNotificationJobStore {
	return &MemoryNotificationJobStore{jobs: map[string]NotificationJob{}}
}

func (s *MemoryNotificationJobStore) Create(_ context.Context, job NotificationJob) (NotificationJob, error) {
	if err := job.Validate(); err != nil {
		return NotificationJob{}, err
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = NotificationJobStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.Payload = copyAnyMap(job.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.IdempotencyKey == job.IdempotencyKey {
			return NotificationJob{}, fmt.Errorf("core: notification job with idempotency key %q already exists", job.IdempotencyKey)
		}
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *MemoryNotificationJobStore) Get(_ context.Context, id string) (NotificationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return NotificationJob{}, fmt.Errorf("%w: id %q", ErrNotificationJobNotFound, id)
	}
	return job, nil
}

func (s *MemoryNotificationJobStore) Update(_ context.Context, job NotificationJob) (NotificationJob, error) {
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return NotificationJob{}, fmt.Errorf("core: notification job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[job.ID]
	if !ok {
		return NotificationJob{}, fmt.Errorf("%w: id %q", ErrNotificationJobNotFound, job.ID)
	}
	// SENT, FAILED and CANCELED are final; a stale claimant must not revive the job
	if existing.Status.Terminal() {
		return NotificationJob{}, fmt.Errorf("core: notification job %s is %s and can no longer change", job.ID, existing.Status)
	}
	job.CreatedAt = existing.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	job.Payload = copyAnyMap(job.Payload)
	s.jobs[job.ID] = job
	return job, nil
}

func (s *MemoryNotificationJobStore) ListPending(_ context.Context, now time.Time, limit int) ([]NotificationJob, error) {
	if limit < 1 {
		return nil, fmt.Errorf("core: list limit must be at least 1")
	}
	s.mu.RLock()
	eligible := make([]NotificationJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Status == NotificationJobStatusPending && !job.RunAfter.After(now) {
			eligible = append(eligible, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].RunAfter.Before(eligible[j].RunAfter)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

func (s *MemoryNotificationJobStore) ClaimPending(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return false, fmt.Errorf("%w: id %q", ErrNotificationJobNotFound, id)
	}
	if job.Status != NotificationJobStatusPending {
		return false, nil
	}
	job.Status = NotificationJobStatusSending
	job.UpdatedAt = now.UTC()
	s.jobs[job.ID] = job
	return true, nil
}

func (s *MemoryNotificationJobStore) ReclaimStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reclaimed := 0
	for id, job := range s.jobs {
		if job.Status == NotificationJobStatusSending && job.UpdatedAt.Before(cutoff) {
			job.Status = NotificationJobStatusPending
			job.UpdatedAt = time.Now().UTC()
			s.jobs[id] = job
			reclaimed++
		}
	}
	return reclaimed, nil
}

type MemoryAuditLogStore struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

func NewMemoryAuditLogStore() *MemoryAuditLogStore {
	return &MemoryAuditLogStore{}
}

func (s *MemoryAuditLogStore) Append(_ context.Context, entry AuditEntry) (AuditEntry, error) {
	if err := entry.Validate(); err != nil {
		return AuditEntry{}, err
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Payload = copyAnyMap(entry.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return entry, nil
}

// Entries returns a snapshot in append order.
func (s *MemoryAuditLogStore) Entries() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditEntry(nil), s.entries...)
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
