package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a class of failure inside the demo service
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Workload errors
	ErrCodeExternalCallFailed  ErrorCode = "EXTERNAL_CALL_FAILED"
	ErrCodeExternalCallTimeout ErrorCode = "EXTERNAL_CALL_TIMEOUT"
	ErrCodeDigestUnavailable   ErrorCode = "DIGEST_UNAVAILABLE"
	ErrCodeComputeFailed       ErrorCode = "COMPUTE_FAILED"
	ErrCodeFanOutTimeout       ErrorCode = "FANOUT_TIMEOUT"
	ErrCodeUnknownOperation    ErrorCode = "UNKNOWN_OPERATION"

	// Request processing errors
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// DemoError is a structured error carrying the failing component and request
type DemoError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *DemoError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("[%s][%s] %s: %s", e.RequestID, e.Code, e.Component, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *DemoError) Unwrap() error {
	return e.Cause
}

// Is matches another DemoError by code
func (e *DemoError) Is(target error) bool {
	if t, ok := target.(*DemoError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *DemoError) WithMetadata(key string, value interface{}) *DemoError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithRequestID adds request ID to the error
func (e *DemoError) WithRequestID(requestID string) *DemoError {
	e.RequestID = requestID
	return e
}

// IsRetryable returns true if the error might be resolved by retrying
func (e *DemoError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeExternalCallFailed, ErrCodeExternalCallTimeout, ErrCodeComputeFailed, ErrCodeFanOutTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *DemoError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeInvalidConfig, ErrCodeUnknownOperation:
		return 400
	case ErrCodeNotFound:
		return 404
	case ErrCodeRateLimitExceeded:
		return 429
	case ErrCodeExternalCallFailed:
		return 502
	case ErrCodeExternalCallTimeout, ErrCodeFanOutTimeout:
		return 504
	default:
		return 500
	}
}

// NewError creates a new DemoError
func NewError(code ErrorCode, component, message string) *DemoError {
	return &DemoError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with DemoError structure
func WrapError(err error, code ErrorCode, component, message string) *DemoError {
	if err == nil {
		return nil
	}

	return &DemoError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// Sentinel values for errors.Is comparisons
var (
	ErrExternalCallFailed  = &DemoError{Code: ErrCodeExternalCallFailed}
	ErrExternalCallTimeout = &DemoError{Code: ErrCodeExternalCallTimeout}
	ErrDigestUnavailable   = &DemoError{Code: ErrCodeDigestUnavailable}
	ErrComputeFailed       = &DemoError{Code: ErrCodeComputeFailed}
	ErrFanOutTimeout       = &DemoError{Code: ErrCodeFanOutTimeout}
	ErrUnknownOperation    = &DemoError{Code: ErrCodeUnknownOperation}
)

// NewExternalCallError creates an error for a failed call to the delay endpoint
func NewExternalCallError(url string, cause error) *DemoError {
	return WrapError(cause, ErrCodeExternalCallFailed, "http_client",
		fmt.Sprintf("External call to %s failed", url)).WithMetadata("url", url)
}

// NewExternalTimeoutError creates an error for a delay endpoint call that hit its deadline
func NewExternalTimeoutError(url string, timeout time.Duration, cause error) *DemoError {
	return WrapError(cause, ErrCodeExternalCallTimeout, "http_client",
		fmt.Sprintf("External call to %s exceeded %s", url, timeout)).
		WithMetadata("url", url).
		WithMetadata("timeout", timeout.String())
}

// NewDigestUnavailableError reports a hash algorithm that is not linked into the binary
func NewDigestUnavailableError(component, algorithm string) *DemoError {
	return NewError(ErrCodeDigestUnavailable, component,
		fmt.Sprintf("Digest algorithm %s is unavailable", algorithm)).
		WithMetadata("algorithm", algorithm)
}

// NewComputeError wraps a failure raised while computing a cache value
func NewComputeError(key string, cause error) *DemoError {
	return WrapError(cause, ErrCodeComputeFailed, "cache",
		fmt.Sprintf("Computation for key %s failed", key)).WithMetadata("key", key)
}

// NewFanOutTimeoutError reports a fan-out barrier that did not close in time
func NewFanOutTimeoutError(tasks int, timeout time.Duration, cause error) *DemoError {
	return WrapError(cause, ErrCodeFanOutTimeout, "concurrent_processing",
		fmt.Sprintf("Fan-out of %d tasks did not complete within %s", tasks, timeout)).
		WithMetadata("tasks", tasks)
}

// NewUnknownOperationError reports an operation kind outside the closed set
func NewUnknownOperationError(kind string) *DemoError {
	return NewError(ErrCodeUnknownOperation, "selector",
		fmt.Sprintf("Unknown operation kind '%s'", kind)).WithMetadata("operation", kind)
}

// IsDemoError checks if an error is a DemoError
func IsDemoError(err error) bool {
	var demoErr *DemoError
	return errors.As(err, &demoErr)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var demoErr *DemoError
	if errors.As(err, &demoErr) {
		return demoErr.Code
	}
	return ErrCodeInternalError
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var demoErr *DemoError
	if errors.As(err, &demoErr) {
		return demoErr.IsRetryable()
	}
	return false
}

// GetHTTPStatusCode gets the appropriate HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var demoErr *DemoError
	if errors.As(err, &demoErr) {
		return demoErr.HTTPStatusCode()
	}
	return 500
}
