// Package errors defines the shared error taxonomy for quota governance and
// generation brokering. Provider-specific failures and admission denials are
// all mapped to these types so callers can branch on kind, not on provider.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the standard error carried across the governance and broker
// layers. Retryable controls whether the broker may continue to the next
// provider after seeing it.
type Error struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (provider=%s, code=%d)", e.Type, e.Message, e.Provider, e.StatusCode)
	}
	if e.Scope != "" {
		return fmt.Sprintf("[%s] %s (scope=%s)", e.Type, e.Message, e.Scope)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// HTTPStatusCode returns the status code to surface on an HTTP transport.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Error type constants.
const (
	TypeBudgetExceeded   = "budget_exceeded"
	TypeCallerQuota      = "caller_quota_exceeded"
	TypeAuthentication   = "authentication_error"
	TypeInvalidRequest   = "invalid_request_error"
	TypePayloadTooLarge  = "payload_too_large"
	TypeNotFound         = "not_found_error"
	TypeTimeout          = "timeout_error"
	TypeThrottled        = "throttled_error"
	TypeUnavailable      = "service_unavailable_error"
	TypeUpstream         = "upstream_error"
	TypeInternal         = "internal_error"
	TypeCacheUnavailable = "cache_unavailable"
	TypeExhausted        = "providers_exhausted"
)

// NewBudgetExceededError reports an admission denial by the daily quota
// ledger. Always recoverable by the caller: shrink the request, wait for the
// reset, or serve from cache.
func NewBudgetExceededError(scope, message string) *Error {
	return &Error{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeBudgetExceeded,
		Scope:      scope,
		Retryable:  false,
	}
}

// NewCallerQuotaError reports a denial by the per-caller quota guard. No
// provider has been contacted when this is returned.
func NewCallerQuotaError(callerID, message string) *Error {
	return &Error{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeCallerQuota,
		Scope:      callerID,
		Retryable:  false,
	}
}

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(provider, message string) *Error {
	return &Error{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Type:       TypeAuthentication,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(provider, message string) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewPayloadTooLargeError creates an oversized-payload error (413).
func NewPayloadTooLargeError(provider, message string) *Error {
	return &Error{
		StatusCode: http.StatusRequestEntityTooLarge,
		Message:    message,
		Type:       TypePayloadTooLarge,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(provider, message string) *Error {
	return &Error{
		StatusCode: http.StatusNotFound,
		Message:    message,
		Type:       TypeNotFound,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error (408). Timeouts are transient and
// the broker moves on to the next provider.
func NewTimeoutError(provider, message string) *Error {
	return &Error{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewThrottledError creates a provider throttling error (429).
func NewThrottledError(provider, message string) *Error {
	return &Error{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeThrottled,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewUnavailableError creates a service unavailable error (503).
func NewUnavailableError(provider, message string) *Error {
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeUnavailable,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewUpstreamError creates an error for a provider-side 5xx. Treated as
// transient.
func NewUpstreamError(provider string, statusCode int, message string) *Error {
	return &Error{
		StatusCode: statusCode,
		Message:    message,
		Type:       TypeUpstream,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewInternalError creates an internal error (500) for faults in this
// process, not the provider. Not retryable against other providers.
func NewInternalError(provider, message string) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternal,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewCacheUnavailableError reports a persistence-layer failure. Callers log
// it and degrade to a miss; it must never surface as a request failure.
func NewCacheUnavailableError(backend, message string) *Error {
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeCacheUnavailable,
		Scope:      backend,
		Retryable:  false,
	}
}

// IsRetryable reports whether the broker may continue to the next provider
// after err. Unknown error types are treated as transient so that a flaky
// transport never pins the request to a dead provider.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}

// IsBudgetDenial reports whether err is a quota admission denial, either
// from the daily ledger or from the per-caller guard.
func IsBudgetDenial(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == TypeBudgetExceeded || e.Type == TypeCallerQuota
	}
	return false
}
