// Package auth acquires and caches OAuth client-credentials tokens for the
// calendar API. A single manager instance owns its cache and metrics; there
// is no process-global state.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-schedsync/core"
)

const (
	defaultRefreshWindow   = 5 * time.Minute
	defaultRequestTimeout  = 30 * time.Second
	defaultTokenURLPattern = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	responseBodyLimit int64 = 1 << 20
)

type TokenManagerConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	// TokenURL overrides the tenant-templated default endpoint.
	TokenURL string
	// RefreshWindow is how long before expiry a cached token is considered
	// stale and refreshed early.
	RefreshWindow time.Duration
	HTTPClient    core.HTTPDoer
	Logger        core.Logger
	Now           func() time.Time
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// tokenFetch is the shared in-flight refresh. Concurrent callers wait on
// done and read the settled fields; the manager clears its inflight pointer
// unconditionally before closing done, so a failed refresh never blocks the
// next attempt.
type tokenFetch struct {
	done  chan struct{}
	token string
	err   error
}

type TokenMetricsSnapshot struct {
	RefreshCount  int64
	FailureCount  int64
	LastRefreshAt time.Time
	LastFailureAt time.Time
	LastError     string
}

type TokenManager struct {
	config TokenManagerConfig

	mu       sync.Mutex
	cached   *cachedToken
	inflight *tokenFetch
	metrics  TokenMetricsSnapshot
}

func NewTokenManager(cfg TokenManagerConfig) (*TokenManager, error) {
	cfg.TenantID = strings.TrimSpace(cfg.TenantID)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.Scope = strings.TrimSpace(cfg.Scope)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, core.NewConfigError("auth: client id and client secret are required")
	}
	if cfg.TokenURL == "" {
		if cfg.TenantID == "" {
			return nil, core.NewConfigError("auth: tenant id is required when no token url is configured")
		}
		cfg.TokenURL = fmt.Sprintf(defaultTokenURLPattern, cfg.TenantID)
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = defaultRefreshWindow
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	return &TokenManager{config: cfg}, nil
}

// GetToken returns the cached token unless it is absent or inside the
// early-refresh window, in which case the caller either starts a refresh or
// joins the one already in flight. All joined callers observe the same
// settled result.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	if m == nil {
		return "", fmt.Errorf("auth: token manager is not configured")
	}

	m.mu.Lock()
	now := m.config.Now().UTC()
	if m.cached != nil && m.cached.expiresAt.After(now.Add(m.config.RefreshWindow)) {
		token := m.cached.accessToken
		m.mu.Unlock()
		return token, nil
	}
	if m.inflight != nil {
		fetch := m.inflight
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-fetch.done:
			return fetch.token, fetch.err
		}
	}
	fetch := &tokenFetch{done: make(chan struct{})}
	m.inflight = fetch
	m.mu.Unlock()

	token, expiresAt, err := m.requestToken(ctx)

	m.mu.Lock()
	fetch.token = token
	fetch.err = err
	m.inflight = nil
	now = m.config.Now().UTC()
	if err != nil {
		m.metrics.FailureCount++
		m.metrics.LastFailureAt = now
		m.metrics.LastError = err.Error()
	} else {
		m.cached = &cachedToken{accessToken: token, expiresAt: expiresAt}
		m.metrics.RefreshCount++
		m.metrics.LastRefreshAt = now
	}
	m.mu.Unlock()
	close(fetch.done)

	return token, err
}

// ClearToken drops the cache so the next GetToken refreshes.
func (m *TokenManager) ClearToken() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// TokenStatus derives cache state without side effects.
func (m *TokenManager) TokenStatus() core.TokenStatus {
	if m == nil {
		return core.TokenStatus{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return core.TokenStatus{}
	}
	now := m.config.Now().UTC()
	remaining := m.cached.expiresAt.Sub(now)
	status := core.TokenStatus{
		ExpiresAt: m.cached.expiresAt,
		Valid:     remaining > 0,
	}
	if remaining > 0 {
		status.ExpiresInSeconds = int64(remaining / time.Second)
	}
	return status
}

func (m *TokenManager) Metrics() TokenMetricsSnapshot {
	if m == nil {
		return TokenMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

func (m *TokenManager) ResetMetrics() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.metrics = TokenMetricsSnapshot{}
	m.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *TokenManager) requestToken(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", m.config.ClientID)
	form.Set("client_secret", m.config.ClientSecret)
	if m.config.Scope != "" {
		form.Set("scope", m.config.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, core.NewNetworkError(err, "auth: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := m.config.HTTPClient.Do(req)
	if err != nil {
		m.logError(ctx, "token refresh transport failure", map[string]any{"error": err.Error()})
		return "", time.Time{}, core.NewNetworkError(err, "auth: execute token request")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, responseBodyLimit))
	if err != nil {
		return "", time.Time{}, core.NewNetworkError(err, "auth: read token response")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		m.logError(ctx, "token refresh rejected", map[string]any{"status": res.StatusCode})
		return "", time.Time{}, core.NewAuthError(
			fmt.Sprintf("auth: token endpoint returned status %d", res.StatusCode),
			res.StatusCode,
		)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", time.Time{}, core.NewNetworkError(err, "auth: decode token response")
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", time.Time{}, core.NewAuthError("auth: token response has no access_token", res.StatusCode)
	}

	expiresAt := m.config.Now().UTC().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return parsed.AccessToken, expiresAt, nil
}

func (m *TokenManager) logError(ctx context.Context, message string, fields map[string]any) {
	if m == nil || m.config.Logger == nil {
		return
	}
	logger := m.config.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	logger.Error(message)
}
