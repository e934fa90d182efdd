package core

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput        = "SCHEDSYNC_BAD_INPUT"
	ServiceErrorConfigInvalid   = "SCHEDSYNC_CONFIG_INVALID"
	ServiceErrorAuthFailed      = "SCHEDSYNC_AUTH_FAILED"
	ServiceErrorNotFound        = "SCHEDSYNC_NOT_FOUND"
	ServiceErrorRateLimited     = "SCHEDSYNC_RATE_LIMITED"
	ServiceErrorUpstreamFailure = "SCHEDSYNC_UPSTREAM_FAILURE"
	ServiceErrorNetworkFailure  = "SCHEDSYNC_NETWORK_FAILURE"
	ServiceErrorJobExhausted    = "SCHEDSYNC_JOB_EXHAUSTED"
	ServiceErrorInternal        = "SCHEDSYNC_INTERNAL_ERROR"
)

const retryAfterMetadataKey = "retry_after_ms"

// NewAuthError marks a credentials problem with the upstream. Never retried.
func NewAuthError(message string, status int) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(status).
		WithTextCode(ServiceErrorAuthFailed).
		WithMetadata(map[string]any{"status": status})
}

func NewNotFoundError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ServiceErrorNotFound).
		WithMetadata(map[string]any{"status": http.StatusNotFound})
}

// NewRateLimitError records the server-dictated delay when the response
// carried one; retryAfter of zero means "no hint, use local backoff".
func NewRateLimitError(message string, retryAfter time.Duration) *goerrors.Error {
	metadata := map[string]any{"status": http.StatusTooManyRequests}
	if retryAfter > 0 {
		metadata[retryAfterMetadataKey] = retryAfter.Milliseconds()
	}
	return goerrors.New(message, goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(ServiceErrorRateLimited).
		WithMetadata(metadata)
}

func NewServerError(message string, status int) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(status).
		WithTextCode(ServiceErrorUpstreamFailure).
		WithMetadata(map[string]any{"status": status})
}

func NewNetworkError(source error, message string) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(ServiceErrorNetworkFailure)
}

func NewConfigError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorConfigInvalid)
}

func NewJobExhaustedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorJobExhausted)
}

// IsRetryable reports whether the retry layer should attempt the operation
// again: rate limits, upstream 5xx and transport failures qualify; auth,
// not-found and validation errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryRateLimit, goerrors.CategoryExternal:
		return true
	}
	return false
}

// RetryAfterHint extracts a server-dictated retry delay, if the error
// carries one.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0, false
	}
	raw, ok := richErr.Metadata[retryAfterMetadataKey]
	if !ok {
		return 0, false
	}
	ms, ok := raw.(int64)
	if !ok || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// ErrorStatus returns the HTTP status recorded on a classified error, or
// zero for transport-level failures and foreign errors.
func ErrorStatus(err error) int {
	if err == nil {
		return 0
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0
	}
	if status, ok := richErr.Metadata["status"].(int); ok {
		return status
	}
	return 0
}

// MapError normalizes foreign errors into the service envelope so callers
// always observe a category and text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryRateLimit).WithTextCode(ServiceErrorRateLimited))
	case strings.Contains(msg, "not found"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ServiceErrorNotFound))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ServiceErrorBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = defaultErrorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultErrorTextCode(err.Category)
	}
	return err
}

func defaultErrorTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ServiceErrorBadInput
	case goerrors.CategoryValidation:
		return ServiceErrorConfigInvalid
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorAuthFailed
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorUpstreamFailure
	case goerrors.CategoryOperation:
		return ServiceErrorJobExhausted
	default:
		return ServiceErrorInternal
	}
}

func defaultErrorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
