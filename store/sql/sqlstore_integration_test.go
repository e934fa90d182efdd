package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-schedsync/core"
	schedmigrations "github.com/goliatone/go-schedsync/migrations"
	sqlstore "github.com/goliatone/go-schedsync/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-schedsync-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:schedsync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = schedmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != schedmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, schedmigrations.WithValidationTargets(schedmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()

	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{
		"schedsync_webhook_events",
		"schedsync_sync_jobs",
		"schedsync_notification_jobs",
		"schedsync_audit_log",
	} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestWebhookEventStore_DedupByEventIDAndPayloadHash(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.WebhookEvents()
	if events == nil {
		t.Fatalf("expected webhook event store from factory")
	}

	first, err := events.Create(ctx, core.WebhookEvent{
		EventID:     "evt-100",
		PayloadHash: "hash-100",
		EventType:   "application.updated",
		Verified:    true,
		Payload:     map[string]any{"applicationId": "app-1"},
		RawBody:     []byte(`{"applicationId":"app-1"}`),
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated event id")
	}
	if first.Status != core.WebhookEventStatusReceived {
		t.Fatalf("expected received status, got %q", first.Status)
	}

	// Insert racing on the same event id resolves to the stored row.
	dup, err := events.Create(ctx, core.WebhookEvent{
		EventID:     "evt-100",
		PayloadHash: "hash-other",
		EventType:   "application.updated",
	})
	if err != nil {
		t.Fatalf("create duplicate event: %v", err)
	}
	if dup.ID != first.ID {
		t.Fatalf("expected duplicate insert to resolve to %s, got %s", first.ID, dup.ID)
	}

	byEventID, err := events.GetByEventID(ctx, "evt-100")
	if err != nil {
		t.Fatalf("get by event id: %v", err)
	}
	if byEventID.ID != first.ID || byEventID.Payload["applicationId"] != "app-1" {
		t.Fatalf("unexpected event by id: %+v", byEventID)
	}

	// Hash dedup only applies to events without a sender-provided id, so a
	// hash shared with evt-100 is still free for an id-less event.
	anon, err := events.Create(ctx, core.WebhookEvent{
		PayloadHash: "hash-100",
		EventType:   "application.updated",
	})
	if err != nil {
		t.Fatalf("create anonymous event: %v", err)
	}
	anonDup, err := events.Create(ctx, core.WebhookEvent{
		PayloadHash: "hash-100",
		EventType:   "application.updated",
	})
	if err != nil {
		t.Fatalf("create duplicate anonymous event: %v", err)
	}
	if anonDup.ID != anon.ID {
		t.Fatalf("expected hash dedup to resolve to %s, got %s", anon.ID, anonDup.ID)
	}

	byHash, err := events.GetByPayloadHash(ctx, "hash-100")
	if err != nil {
		t.Fatalf("get by payload hash: %v", err)
	}
	if byHash.ID != anon.ID {
		t.Fatalf("expected hash lookup to skip id-carrying rows, got %s", byHash.ID)
	}

	if _, err := events.GetByEventID(ctx, "missing"); !errors.Is(err, core.ErrWebhookEventNotFound) {
		t.Fatalf("expected ErrWebhookEventNotFound, got %v", err)
	}
}

func TestWebhookEventStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.WebhookEvents()
	created, err := events.Create(ctx, core.WebhookEvent{
		EventID:     "evt-status",
		PayloadHash: "hash-status",
		EventType:   "interview.booked",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	processedAt := time.Now().UTC().Truncate(time.Second)
	if err := events.UpdateStatus(ctx, created.ID, core.WebhookEventStatusProcessed, &processedAt); err != nil {
		t.Fatalf("update status: %v", err)
	}

	stored, err := events.GetByEventID(ctx, "evt-status")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if stored.Status != core.WebhookEventStatusProcessed {
		t.Fatalf("expected processed status, got %q", stored.Status)
	}
	if stored.ProcessedAt == nil || !stored.ProcessedAt.Equal(processedAt) {
		t.Fatalf("expected processed at %v, got %v", processedAt, stored.ProcessedAt)
	}

	missingErr := events.UpdateStatus(ctx, "00000000-0000-0000-0000-000000000000", core.WebhookEventStatusFailed, nil)
	if !errors.Is(missingErr, core.ErrWebhookEventNotFound) {
		t.Fatalf("expected ErrWebhookEventNotFound, got %v", missingErr)
	}
}

func TestSyncJobStore_ClaimListAndReclaim(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	jobs := factory.SyncJobs()
	now := time.Now().UTC().Truncate(time.Second)

	late, err := jobs.Create(ctx, core.SyncJob{
		Type:       core.SyncJobTypeNoteWriteback,
		EntityID:   "req-late",
		EntityType: core.EntityTypeSchedulingRequest,
		RunAfter:   now.Add(-time.Minute),
		Payload:    map[string]any{"note": "late"},
	})
	if err != nil {
		t.Fatalf("create late job: %v", err)
	}
	early, err := jobs.Create(ctx, core.SyncJob{
		Type:       core.SyncJobTypeNoteWriteback,
		EntityID:   "req-early",
		EntityType: core.EntityTypeSchedulingRequest,
		RunAfter:   now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create early job: %v", err)
	}
	if _, err := jobs.Create(ctx, core.SyncJob{
		Type:       core.SyncJobTypeNoteWriteback,
		EntityID:   "req-future",
		EntityType: core.EntityTypeSchedulingRequest,
		RunAfter:   now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("create future job: %v", err)
	}

	pending, err := jobs.ListPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(pending))
	}
	if pending[0].ID != early.ID || pending[1].ID != late.ID {
		t.Fatalf("expected run_after ordering, got %s then %s", pending[0].EntityID, pending[1].EntityID)
	}

	claimed, err := jobs.ClaimPending(ctx, early.ID, now)
	if err != nil {
		t.Fatalf("claim pending: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to win")
	}
	again, err := jobs.ClaimPending(ctx, early.ID, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again {
		t.Fatalf("expected second claim to lose")
	}

	processing, err := jobs.Get(ctx, early.ID)
	if err != nil {
		t.Fatalf("get claimed job: %v", err)
	}
	if processing.Status != core.SyncJobStatusProcessing {
		t.Fatalf("expected processing status, got %q", processing.Status)
	}

	// The claimed job was last touched at claim time; a cutoff beyond the
	// lease window flips it back to pending.
	reclaimed, err := jobs.ReclaimStale(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("reclaim stale: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", reclaimed)
	}
	restored, err := jobs.Get(ctx, early.ID)
	if err != nil {
		t.Fatalf("get reclaimed job: %v", err)
	}
	if restored.Status != core.SyncJobStatusPending {
		t.Fatalf("expected pending after reclaim, got %q", restored.Status)
	}

	if _, err := jobs.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, core.ErrSyncJobNotFound) {
		t.Fatalf("expected ErrSyncJobNotFound, got %v", err)
	}
}

func TestSyncJobStore_UpdatePersistsAttemptState(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	jobs := factory.SyncJobs()
	created, err := jobs.Create(ctx, core.SyncJob{
		Type:       core.SyncJobTypeNoteWriteback,
		EntityID:   "bkg-1",
		EntityType: core.EntityTypeBooking,
		Payload:    map[string]any{"note": "Interview booked"},
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	created.Attempts = 2
	created.Status = core.SyncJobStatusPending
	created.LastError = "ats: server error"
	created.RunAfter = time.Now().UTC().Add(5 * time.Minute).Truncate(time.Second)

	updated, err := jobs.Update(ctx, created)
	if err != nil {
		t.Fatalf("update job: %v", err)
	}
	if updated.Attempts != 2 || updated.LastError != "ats: server error" {
		t.Fatalf("unexpected updated job: %+v", updated)
	}

	stored, err := jobs.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Attempts != 2 || !stored.RunAfter.Equal(created.RunAfter) {
		t.Fatalf("expected persisted attempt state, got %+v", stored)
	}
}

func TestRepositoryFactory_WithWebhookEventCache(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}

	if err := factory.WithWebhookEventCache(cacheService); err != nil {
		t.Fatalf("enable webhook event cache: %v", err)
	}
	events := factory.WebhookEvents()
	if _, ok := events.(*sqlstore.CachedWebhookEventStore); !ok {
		t.Fatalf("expected cached webhook event store from factory, got %T", events)
	}

	created, err := events.Create(ctx, core.WebhookEvent{
		EventID:     "evt-cached",
		PayloadHash: "hash-cached",
		EventType:   "interview.booked",
		Verified:    true,
	})
	if err != nil {
		t.Fatalf("create through cached store: %v", err)
	}
	for i := 0; i < 2; i++ {
		found, err := events.GetByEventID(ctx, "evt-cached")
		if err != nil {
			t.Fatalf("get %d through cached store: %v", i, err)
		}
		if found.ID != created.ID || !found.Verified {
			t.Fatalf("unexpected cached lookup: %+v", found)
		}
	}

	if err := sqlstore.NewRepositoryFactory().WithWebhookEventCache(cacheService); err == nil {
		t.Fatalf("expected cache wiring before BuildStores to fail")
	}
}

func TestSyncJobStore_UpdateRefusesTerminalJob(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	jobs := factory.SyncJobs()
	created, err := jobs.Create(ctx, core.SyncJob{
		Type:       core.SyncJobTypeNoteWriteback,
		EntityID:   "bkg-terminal",
		EntityType: core.EntityTypeBooking,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	created.Status = core.SyncJobStatusCompleted
	if _, err := jobs.Update(ctx, created); err != nil {
		t.Fatalf("complete job: %v", err)
	}

	created.Status = core.SyncJobStatusPending
	created.LastError = "stale claimant"
	if _, err := jobs.Update(ctx, created); err == nil {
		t.Fatalf("expected update of completed job to fail")
	} else if errors.Is(err, core.ErrSyncJobNotFound) {
		t.Fatalf("expected terminal refusal, got not-found: %v", err)
	}

	stored, err := jobs.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != core.SyncJobStatusCompleted {
		t.Fatalf("expected completed to stick, got %q", stored.Status)
	}
}

func TestNotificationJobStore_UpdateRefusesTerminalJob(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	notifications := factory.NotificationJobs()
	created, err := notifications.Create(ctx, core.NotificationJob{
		IdempotencyKey: "sent-bkg-terminal",
		ToEmail:        "candidate@example.com",
		Template:       "booking_confirmation",
	})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}

	created.Status = core.NotificationJobStatusSent
	if _, err := notifications.Update(ctx, created); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	created.Status = core.NotificationJobStatusPending
	if _, err := notifications.Update(ctx, created); err == nil {
		t.Fatalf("expected update of sent notification to fail")
	} else if errors.Is(err, core.ErrNotificationJobNotFound) {
		t.Fatalf("expected terminal refusal, got not-found: %v", err)
	}

	stored, err := notifications.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if stored.Status != core.NotificationJobStatusSent {
		t.Fatalf("expected SENT to stick, got %q", stored.Status)
	}
}

func TestNotificationJobStore_IdempotencyKeyCollisionReturnsExisting(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	notifications := factory.NotificationJobs()
	first, err := notifications.Create(ctx, core.NotificationJob{
		IdempotencyKey: "booked-bkg-1",
		ToEmail:        "candidate@example.com",
		Template:       "booking_confirmation",
		Payload:        map[string]any{"bookingId": "bkg-1"},
	})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}

	second, err := notifications.Create(ctx, core.NotificationJob{
		IdempotencyKey: "booked-bkg-1",
		ToEmail:        "candidate@example.com",
		Template:       "booking_confirmation",
	})
	if err != nil {
		t.Fatalf("re-enqueue notification: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected re-enqueue to return existing job %s, got %s", first.ID, second.ID)
	}

	claimed, err := notifications.ClaimPending(ctx, first.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("claim notification: %v", err)
	}
	if !claimed {
		t.Fatalf("expected claim to win")
	}
	stored, err := notifications.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if stored.Status != core.NotificationJobStatusSending {
		t.Fatalf("expected SENDING after claim, got %q", stored.Status)
	}

	reclaimed, err := notifications.ReclaimStale(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("reclaim stale: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed notification, got %d", reclaimed)
	}
}

func TestAuditLogStore_Append(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	audit := factory.AuditLog()
	entry, err := audit.Append(ctx, core.AuditEntry{
		Action:    "ats_booked_note_success",
		ActorType: "system",
		BookingID: "bkg-1",
		Payload:   map[string]any{"application_id": "app-1"},
	})
	if err != nil {
		t.Fatalf("append audit entry: %v", err)
	}
	if entry.ID == "" {
		t.Fatalf("expected generated audit id")
	}
	if entry.CreatedAt.IsZero() {
		t.Fatalf("expected created at to be set")
	}

	var count int
	if err := factory.DB().NewRaw(
		"SELECT COUNT(*) FROM schedsync_audit_log WHERE action = ?",
		"ats_booked_note_success",
	).Scan(ctx, &count); err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 audit row, got %d", count)
	}
}
