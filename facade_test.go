package schedsync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	schedcommand "github.com/goliatone/go-schedsync/command"
	"github.com/goliatone/go-schedsync/core"
	"github.com/goliatone/go-schedsync/webhooks"
	"github.com/goliatone/go-schedsync/worker"
	"github.com/goliatone/go-schedsync/writeback"
)

type recordingNoteWriter struct {
	err   error
	notes []string
}

func (w *recordingNoteWriter) AddApplicationNote(_ context.Context, id string, note string) error {
	w.notes = append(w.notes, fmt.Sprintf("%s|%s", id, note))
	return w.err
}

func newTestService(t *testing.T, writer writeback.NoteWriter) *Service {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Webhook.Secret = "webhook-secret"

	svc, err := New(cfg,
		WithNoteWriter(writer),
		WithStores(core.NewMemoryStores()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewFacade_WiresCommands(t *testing.T) {
	svc := newTestService(t, &recordingNoteWriter{})

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.WriteLinkCreatedNote == nil || commands.ReceiveWebhook == nil || commands.ProcessSyncQueue == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	if facade.Service() != svc {
		t.Fatalf("expected facade to expose the backing service")
	}
}

func TestNewFacade_RejectsPartialService(t *testing.T) {
	cfg := DefaultConfig()
	// No webhook secret, no ATS client: ingest and writeback stay nil.
	svc, err := New(cfg, WithStores(core.NewMemoryStores()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := NewFacade(svc); err == nil {
		t.Fatalf("expected partial service to be rejected")
	}
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil service to be rejected")
	}
}

func TestFacade_BookedNoteCommandDelegation(t *testing.T) {
	writer := &recordingNoteWriter{}
	svc := newTestService(t, writer)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[writeback.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	msg := schedcommand.WriteBookedNoteMessage{Note: writeback.BookedNote{
		ApplicationID: "app-1",
		BookingID:     "bkg-1",
		CandidateName: "Jordan Reyes",
		StartsAt:      start,
		EndsAt:        start.Add(time.Hour),
	}}
	if err := msg.Validate(); err != nil {
		t.Fatalf("validate message: %v", err)
	}
	if err := facade.Commands().WriteBookedNote.Execute(ctx, msg); err != nil {
		t.Fatalf("execute booked note command: %v", err)
	}

	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected a stored result")
	}
	if !result.Success || result.Skipped {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(writer.notes) != 1 {
		t.Fatalf("expected one note write, got %d", len(writer.notes))
	}
}

func TestFacade_ReceiveWebhookCommandDelegation(t *testing.T) {
	svc := newTestService(t, &recordingNoteWriter{})
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	payload := webhooks.Payload{
		EventID:   "evt-1",
		EventType: "application.updated",
		Data:      map[string]any{"applicationId": "app-1"},
	}
	rawBody, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	signature := webhooks.SignPayload(rawBody, "webhook-secret")

	collector := gocmd.NewResult[webhooks.ReceiveResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := facade.Commands().ReceiveWebhook.Execute(ctx, schedcommand.ReceiveWebhookMessage{
		Payload:   payload,
		Signature: signature,
		RawBody:   rawBody,
	}); err != nil {
		t.Fatalf("execute receive webhook command: %v", err)
	}

	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected a stored result")
	}
	if !result.Success || !result.Verified || result.IsDuplicate {
		t.Fatalf("unexpected receive result: %+v", result)
	}

	stored, err := svc.Stores().WebhookEvents().GetByEventID(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get stored event: %v", err)
	}
	if !stored.Verified {
		t.Fatalf("expected stored event to be verified")
	}
}

func TestFacade_SyncQueueCommandReplaysFailedWriteback(t *testing.T) {
	writer := &recordingNoteWriter{err: core.NewServerError("ats: server error", 503)}
	svc := newTestService(t, writer)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	// Failed writeback queues a replay job instead of erroring.
	result := svc.Writeback().WriteCancelledNote(context.Background(), writeback.CancelledNote{
		ApplicationID: "app-1",
		BookingID:     "bkg-1",
		Reason:        "candidate withdrew",
	})
	if result.Success || result.SyncJobID == "" {
		t.Fatalf("expected failed writeback to queue a job, got %+v", result)
	}

	// Remote recovers; the queue cycle drains the job.
	writer.err = nil

	collector := gocmd.NewResult[worker.BatchSummary]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := facade.Commands().ProcessSyncQueue.Execute(ctx, schedcommand.ProcessSyncQueueMessage{}); err != nil {
		t.Fatalf("execute process sync queue command: %v", err)
	}

	summary, ok := collector.Load()
	if !ok {
		t.Fatalf("expected a stored batch summary")
	}
	if summary.Completed != 1 {
		t.Fatalf("expected 1 completed job, got %+v", summary)
	}

	job, err := svc.Stores().SyncJobs().Get(ctx, result.SyncJobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != core.SyncJobStatusCompleted {
		t.Fatalf("expected completed job, got %q", job.Status)
	}
}

type capturingEnqueuer struct {
	messages []*core.JobExecutionMessage
	err      error
}

func (e *capturingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	e.messages = append(e.messages, msg)
	return e.err
}

func TestService_ScheduleQueueCycles(t *testing.T) {
	svc := newTestService(t, &recordingNoteWriter{})
	enqueuer := &capturingEnqueuer{}
	window := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	if err := svc.ScheduleQueueCycles(context.Background(), enqueuer, window); err != nil {
		t.Fatalf("schedule queue cycles: %v", err)
	}
	if len(enqueuer.messages) != 2 {
		t.Fatalf("expected 2 cycle messages, got %d", len(enqueuer.messages))
	}
	for _, msg := range enqueuer.messages {
		if msg.IdempotencyKey != msg.JobID+"@2026-03-02T15:00:00Z" {
			t.Fatalf("unexpected idempotency key %q for %q", msg.IdempotencyKey, msg.JobID)
		}
	}

	if err := svc.ScheduleQueueCycles(context.Background(), nil, window); err == nil {
		t.Fatalf("expected nil enqueuer to be rejected")
	}
}

func TestNew_ConfigResolutionAppliesDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ServiceName = "schedsync-test"
	cfg.Webhook.Secret = "webhook-secret"

	svc, err := New(cfg, WithNoteWriter(&recordingNoteWriter{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	resolved := svc.Config()
	if resolved.ServiceName != "schedsync-test" {
		t.Fatalf("expected runtime service name to win, got %q", resolved.ServiceName)
	}
	if resolved.Jobs.MaxAttempts != 5 || resolved.Jobs.BatchLimit != 25 {
		t.Fatalf("expected job defaults to apply, got %+v", resolved.Jobs)
	}
	if resolved.ATS.MaxRetries != 3 {
		t.Fatalf("expected ats retry default, got %d", resolved.ATS.MaxRetries)
	}
	if svc.IngressHandler() == nil {
		t.Fatalf("expected ingress handler for configured webhook secret")
	}
	if svc.Tokens() != nil || svc.ATS() != nil {
		t.Fatalf("expected unconfigured components to stay nil")
	}
}
