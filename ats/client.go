// Package ats is the typed client for the applicant-tracking API. It
// classifies failures, retries transient ones with backoff, honors
// rate-limit hints and attaches deterministic idempotency keys to
// side-effecting calls so the retry layer can replay them safely.
package ats

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-schedsync/core"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerAPIKey         = "X-API-Key"

	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultRetryDelay     = time.Second

	responseBodyLimit int64 = 4 << 20
)

type ClientConfig struct {
	BaseURL string
	APIKey  string
	// MaxRetries counts additional attempts after the first; 3 retries
	// means 4 total calls.
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient core.HTTPDoer
	Logger     core.Logger
	Now        func() time.Time
	// Sleep is injectable for tests; defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

type MetricsSnapshot struct {
	TotalCalls      int64
	Successes       int64
	RateLimitHits   int64
	ServerErrors    int64
	AuthFailures    int64
	TotalLatencyMS  int64
	LastErrorStatus int
	LastErrorAt     time.Time
	LastError       string
}

type Client struct {
	config ClientConfig

	mu      sync.Mutex
	metrics MetricsSnapshot
}

func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		return nil, core.NewConfigError("ats: base url is required")
	}
	if cfg.APIKey == "" {
		return nil, core.NewConfigError("ats: api key is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Sleep == nil {
		cfg.Sleep = waitWithContext
	}
	return &Client{config: cfg}, nil
}

// GetApplication fetches and normalizes one application record. The remote
// API answers either a flat record or a nested candidate/requisition shape;
// both normalize into core.Application.
func (c *Client) GetApplication(ctx context.Context, id string) (core.Application, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Application{}, fmt.Errorf("ats: application id is required")
	}

	body, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			fmt.Sprintf("%s/applications/%s", c.config.BaseURL, id),
			nil,
		)
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set(headerAPIKey, c.config.APIKey)
		return req, nil
	})
	if err != nil {
		return core.Application{}, err
	}
	return normalizeApplication(id, body)
}

// AddApplicationNote posts a note against the application. The idempotency
// key is derived from the application id alone, so every replay of the same
// logical write asks the remote system to dedupe.
func (c *Client) AddApplicationNote(ctx context.Context, id string, note string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("ats: application id is required")
	}
	if strings.TrimSpace(note) == "" {
		return fmt.Errorf("ats: note text is required")
	}

	payload, err := json.Marshal(map[string]string{"note": note})
	if err != nil {
		return fmt.Errorf("ats: encode note payload: %w", err)
	}
	idempotencyKey := NoteIdempotencyKey(id)

	_, err = c.doWithRetry(ctx, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			fmt.Sprintf("%s/applications/%s/notes", c.config.BaseURL, id),
			bytes.NewReader(payload),
		)
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(headerAPIKey, c.config.APIKey)
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
		return req, nil
	})
	return err
}

// NoteIdempotencyKey is deterministic per application id: sched-{id}-{token}.
func NoteIdempotencyKey(id string) string {
	sum := sha256.Sum256([]byte("ats-note|" + strings.TrimSpace(id)))
	return fmt.Sprintf("sched-%s-%s", strings.TrimSpace(id), hex.EncodeToString(sum[:8]))
}

func (c *Client) Metrics() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Client) ResetMetrics() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.metrics = MetricsSnapshot{}
	c.mu.Unlock()
}

// doWithRetry executes the request, classifies failures and retries the
// transient ones. Each attempt rebuilds the request so bodies are re-readable.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	attempts := c.config.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("ats: build request: %w", err)
		}

		body, callErr := c.execute(ctx, req)
		if callErr == nil {
			return body, nil
		}
		lastErr = callErr

		if !core.IsRetryable(callErr) || attempt == attempts-1 {
			break
		}

		delay := c.config.RetryDelay
		if hint, ok := core.RetryAfterHint(callErr); ok {
			delay = hint
		}
		if waitErr := c.config.Sleep(ctx, delay); waitErr != nil {
			return nil, waitErr
		}
	}
	return nil, lastErr
}

func (c *Client) execute(ctx context.Context, req *http.Request) ([]byte, error) {
	startedAt := c.config.Now()
	res, err := c.config.HTTPClient.Do(req)
	latency := c.config.Now().Sub(startedAt)

	if err != nil {
		classified := core.NewNetworkError(err, "ats: execute request")
		c.recordCall(latency, 0, classified)
		return nil, classified
	}
	defer res.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(res.Body, responseBodyLimit))
	if readErr != nil {
		classified := core.NewNetworkError(readErr, "ats: read response body")
		c.recordCall(latency, res.StatusCode, classified)
		return nil, classified
	}

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		c.recordCall(latency, res.StatusCode, nil)
		return body, nil
	}

	classified := classifyStatus(res)
	c.recordCall(latency, res.StatusCode, classified)
	c.logFailure(ctx, req, res.StatusCode, classified)
	return nil, classified
}

func classifyStatus(res *http.Response) error {
	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return core.NewAuthError(
			fmt.Sprintf("ats: request rejected with status %d", res.StatusCode),
			res.StatusCode,
		)
	case res.StatusCode == http.StatusNotFound:
		return core.NewNotFoundError("ats: resource not found")
	case res.StatusCode == http.StatusTooManyRequests:
		return core.NewRateLimitError("ats: rate limited", parseRetryAfter(res))
	case res.StatusCode >= 500:
		return core.NewServerError(
			fmt.Sprintf("ats: upstream returned status %d", res.StatusCode),
			res.StatusCode,
		)
	default:
		return core.NewServerError(
			fmt.Sprintf("ats: unexpected status %d", res.StatusCode),
			res.StatusCode,
		)
	}
}

func parseRetryAfter(res *http.Response) time.Duration {
	raw := strings.TrimSpace(res.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if delay := time.Until(at); delay > 0 {
			return delay
		}
	}
	return 0
}

func (c *Client) recordCall(latency time.Duration, status int, callErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.TotalCalls++
	c.metrics.TotalLatencyMS += latency.Milliseconds()
	if callErr == nil {
		c.metrics.Successes++
		return
	}
	switch status {
	case http.StatusTooManyRequests:
		c.metrics.RateLimitHits++
	case http.StatusUnauthorized, http.StatusForbidden:
		c.metrics.AuthFailures++
	default:
		if status >= 500 {
			c.metrics.ServerErrors++
		}
	}
	c.metrics.LastErrorStatus = status
	c.metrics.LastErrorAt = c.config.Now()
	c.metrics.LastError = callErr.Error()
}

func (c *Client) logFailure(ctx context.Context, req *http.Request, status int, callErr error) {
	if c.config.Logger == nil {
		return
	}
	logger := c.config.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(map[string]any{
			"method": req.Method,
			"url":    req.URL.String(),
			"status": status,
			"error":  callErr.Error(),
		})
	}
	logger.Error("ats request failed")
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
