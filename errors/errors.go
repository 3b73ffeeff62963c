package errors

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Constructors for the framework taxonomy ---

// Timeout creates an AppError for an operation that exceeded its deadline.
func Timeout(operation string, after time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s did not complete within %s.", operation, after),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation, "timeout_ms": after.Milliseconds()},
	}
}

// CircuitOpen creates an AppError for a call rejected by an open breaker.
// Callers should treat the dependency as temporarily unavailable.
func CircuitOpen(breaker string) *AppError {
	return &AppError{
		Code: ErrCodeCircuitOpen, Message: fmt.Sprintf("%s is temporarily unavailable. Please try again later.", breaker),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"breaker": breaker},
	}
}

// RateLimited creates an AppError for a request denied by the admission gate.
func RateLimited(key string) *AppError {
	details := map[string]any{}
	if key != "" {
		details["key"] = key
	}
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests. Please wait a moment and try again.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true, Details: details,
	}
}

// BulkheadFull creates an AppError for a call rejected for lack of a concurrency slot.
func BulkheadFull(name string) *AppError {
	return &AppError{
		Code: ErrCodeBulkheadFull, Message: "Concurrency limit reached. Please try again.",
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"bulkhead": name},
	}
}

// CycleDetected creates an AppError describing a traversal that revisited a node.
func CycleDetected(node string) *AppError {
	return &AppError{
		Code: ErrCodeCycleDetected, Message: fmt.Sprintf("Cycle detected at node %s.", node),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"node": node},
	}
}

// BoundExceeded creates an AppError describing a tripped traversal bound.
func BoundExceeded(bound string, limit any) *AppError {
	return &AppError{
		Code: ErrCodeBoundExceeded, Message: fmt.Sprintf("Traversal stopped: %s bound reached.", bound),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"bound": bound, "limit": limit},
	}
}

// Shutdown creates an AppError for work refused because the loop is shutting down.
func Shutdown(loop string) *AppError {
	return &AppError{
		Code: ErrCodeShutdown, Message: fmt.Sprintf("%s is shutting down.", loop),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"loop": loop},
	}
}

// Canceled creates an AppError for an operation cancelled by its caller.
func Canceled(operation string) *AppError {
	return &AppError{
		Code: ErrCodeCanceled, Message: "The request was canceled.",
		HTTPStatus: 499, Retryable: false,
		Details: map[string]any{"operation": operation},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// InvalidConfig creates an AppError for a component constructed with bad parameters.
func InvalidConfig(component, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("Invalid %s configuration: %s", component, reason),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"component": component},
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// ExternalServiceError creates a new AppError for a failing guarded dependency.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("The %s dependency encountered an error.", service),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}
