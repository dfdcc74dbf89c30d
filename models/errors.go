package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout        = "FETCH_TIMEOUT"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeUpstreamStatus = "UPSTREAM_STATUS"
	ErrCodeTransport      = "UPSTREAM_TRANSPORT"
	ErrCodeBrowserCrash   = "BROWSER_CRASH"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternal       = "INTERNAL_ERROR"

	// Negative resolution outcomes. These are not faults.
	ErrCodeOffline    = "CHANNEL_OFFLINE"
	ErrCodeNoManifest = "NO_HLS_MANIFEST"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResolveError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ResolveError struct {
	Code       string
	Message    string
	StatusCode int   // upstream HTTP status, when the fault came from one
	Err        error // wrapped original error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// NewResolveError creates a new ResolveError.
func NewResolveError(code, message string, err error) *ResolveError {
	return &ResolveError{Code: code, Message: message, Err: err}
}

// NewStatusError records a non-2xx upstream response for url.
func NewStatusError(status int, url string) *ResolveError {
	return &ResolveError{
		Code:       ErrCodeUpstreamStatus,
		Message:    fmt.Sprintf("failed to fetch %s: status %d", url, status),
		StatusCode: status,
	}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ResolveError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
