package ats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-schedsync/core"
)

type scriptedStep struct {
	status     int
	body       string
	retryAfter string
}

type scriptedServer struct {
	t     *testing.T
	calls int64
	steps []scriptedStep
	seen  []*http.Request
}

func newScriptedServer(t *testing.T, steps ...scriptedStep) (*scriptedServer, *httptest.Server) {
	t.Helper()
	script := &scriptedServer{t: t, steps: steps}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt64(&script.calls, 1)
		script.seen = append(script.seen, r.Clone(r.Context()))

		step := script.steps[len(script.steps)-1]
		if int(call) <= len(script.steps) {
			step = script.steps[call-1]
		}
		if step.retryAfter != "" {
			w.Header().Set("Retry-After", step.retryAfter)
		}
		w.WriteHeader(step.status)
		_, _ = w.Write([]byte(step.body))
	}))
	t.Cleanup(server.Close)
	return script, server
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGetApplication_FlatShape(t *testing.T) {
	_, server := newScriptedServer(t, scriptedStep{
		status: 200,
		body:   `{"id":"app-1","name":"Ada Lovelace","email":"ada@example.com","requisitionId":"req-7","requisitionTitle":"Engineer"}`,
	})
	client := newTestClient(t, server.URL)

	app, err := client.GetApplication(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	want := core.Application{
		ID:               "app-1",
		CandidateName:    "Ada Lovelace",
		CandidateEmail:   "ada@example.com",
		RequisitionID:    "req-7",
		RequisitionTitle: "Engineer",
	}
	if app != want {
		t.Fatalf("unexpected application: %+v", app)
	}
}

func TestGetApplication_NestedShape(t *testing.T) {
	_, server := newScriptedServer(t, scriptedStep{
		status: 200,
		body:   `{"id":"app-2","candidate":{"name":"Grace Hopper","email":"grace@example.com"},"requisition":{"id":"req-9","title":"Staff Engineer"}}`,
	})
	client := newTestClient(t, server.URL)

	app, err := client.GetApplication(context.Background(), "app-2")
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if app.CandidateName != "Grace Hopper" || app.CandidateEmail != "grace@example.com" {
		t.Fatalf("expected nested candidate to normalize, got %+v", app)
	}
	if app.RequisitionID != "req-9" || app.RequisitionTitle != "Staff Engineer" {
		t.Fatalf("expected nested requisition to normalize, got %+v", app)
	}
}

func TestGetApplication_UnrecognizedShape(t *testing.T) {
	_, server := newScriptedServer(t, scriptedStep{status: 200, body: `{"unexpected":true}`})
	client := newTestClient(t, server.URL)

	if _, err := client.GetApplication(context.Background(), "app-3"); err == nil {
		t.Fatalf("expected unrecognized shape to fail")
	} else if !strings.Contains(err.Error(), "unrecognized application shape") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetApplication_RetriesServerErrorsThenSucceeds(t *testing.T) {
	script, server := newScriptedServer(t,
		scriptedStep{status: 500, body: `{"error":"boom"}`},
		scriptedStep{status: 503, body: `{"error":"busy"}`},
		scriptedStep{status: 200, body: `{"id":"app-4","name":"N","email":"n@example.com","requisitionId":"r","requisitionTitle":"T"}`},
	)
	client := newTestClient(t, server.URL)

	if _, err := client.GetApplication(context.Background(), "app-4"); err != nil {
		t.Fatalf("expected eventual success: %v", err)
	}
	if got := atomic.LoadInt64(&script.calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}

	metrics := client.Metrics()
	if metrics.TotalCalls != 3 || metrics.Successes != 1 || metrics.ServerErrors != 2 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestGetApplication_AuthFailureShortCircuits(t *testing.T) {
	script, server := newScriptedServer(t, scriptedStep{status: 401, body: `{"error":"denied"}`})
	client := newTestClient(t, server.URL)

	_, err := client.GetApplication(context.Background(), "app-5")
	if err == nil {
		t.Fatalf("expected auth failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryAuth || richErr.Code != 401 {
		t.Fatalf("expected classified auth error, got %v", err)
	}
	if got := atomic.LoadInt64(&script.calls); got != 1 {
		t.Fatalf("auth failures must not retry, got %d calls", got)
	}
	if metrics := client.Metrics(); metrics.AuthFailures != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestGetApplication_NotFoundShortCircuits(t *testing.T) {
	script, server := newScriptedServer(t, scriptedStep{status: 404, body: `{"error":"missing"}`})
	client := newTestClient(t, server.URL)

	_, err := client.GetApplication(context.Background(), "app-6")
	if err == nil {
		t.Fatalf("expected not found failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected classified not-found error, got %v", err)
	}
	if got := atomic.LoadInt64(&script.calls); got != 1 {
		t.Fatalf("not-found must not retry, got %d calls", got)
	}
}

func TestGetApplication_RateLimitHonorsRetryAfter(t *testing.T) {
	script, server := newScriptedServer(t,
		scriptedStep{status: 429, body: `{"error":"slow down"}`, retryAfter: "7"},
		scriptedStep{status: 200, body: `{"id":"app-7","name":"N","email":"n@example.com","requisitionId":"r","requisitionTitle":"T"}`},
	)

	var observedDelay time.Duration
	client, err := NewClient(ClientConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			observedDelay = d
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.GetApplication(context.Background(), "app-7"); err != nil {
		t.Fatalf("expected recovery after rate limit: %v", err)
	}
	if observedDelay != 7*time.Second {
		t.Fatalf("expected Retry-After hint of 7s to win, got %v", observedDelay)
	}
	if got := atomic.LoadInt64(&script.calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
	if metrics := client.Metrics(); metrics.RateLimitHits != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestAddApplicationNote_RetriesThenSucceeds(t *testing.T) {
	script, server := newScriptedServer(t,
		scriptedStep{status: 503, body: `{"error":"busy"}`},
		scriptedStep{status: 201, body: `{"ok":true}`},
	)
	client := newTestClient(t, server.URL)

	if err := client.AddApplicationNote(context.Background(), "app-8", "Interview booked"); err != nil {
		t.Fatalf("add note: %v", err)
	}
	if got := atomic.LoadInt64(&script.calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}

	wantKey := NoteIdempotencyKey("app-8")
	for i, req := range script.seen {
		if req.Method != http.MethodPost {
			t.Fatalf("call %d: expected POST, got %s", i, req.Method)
		}
		if !strings.HasSuffix(req.URL.Path, "/applications/app-8/notes") {
			t.Fatalf("call %d: unexpected path %s", i, req.URL.Path)
		}
		if got := req.Header.Get("Idempotency-Key"); got != wantKey {
			t.Fatalf("call %d: expected idempotency key %q, got %q", i, wantKey, got)
		}
		if got := req.Header.Get("X-API-Key"); got != "test-key" {
			t.Fatalf("call %d: expected api key header, got %q", i, got)
		}
	}
}

func TestNoteIdempotencyKey_DeterministicAndShaped(t *testing.T) {
	first := NoteIdempotencyKey("app-9")
	second := NoteIdempotencyKey(" app-9 ")
	if first != second {
		t.Fatalf("expected key to ignore surrounding whitespace: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "sched-app-9-") {
		t.Fatalf("unexpected key shape: %q", first)
	}
	if NoteIdempotencyKey("app-10") == first {
		t.Fatalf("expected distinct ids to produce distinct keys")
	}
}

func TestClient_ExhaustsRetriesOnPersistentServerError(t *testing.T) {
	script, server := newScriptedServer(t, scriptedStep{status: 500, body: `{"error":"boom"}`})
	client := newTestClient(t, server.URL)

	_, err := client.GetApplication(context.Background(), "app-11")
	if err == nil {
		t.Fatalf("expected exhausted retries to fail")
	}
	if got := atomic.LoadInt64(&script.calls); got != 4 {
		t.Fatalf("expected 1+3 calls, got %d", got)
	}
	metrics := client.Metrics()
	if metrics.ServerErrors != 4 || metrics.LastErrorStatus != 500 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}

	client.ResetMetrics()
	if reset := client.Metrics(); reset.TotalCalls != 0 || reset.LastError != "" {
		t.Fatalf("expected metrics reset, got %+v", reset)
	}
}

func TestNewClient_RequiresConfig(t *testing.T) {
	if _, err := NewClient(ClientConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected missing base url to fail")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "https://ats.example.com"}); err == nil {
		t.Fatalf("expected missing api key to fail")
	}
}
