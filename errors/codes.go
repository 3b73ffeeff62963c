package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Availability errors (retryable once the guarded dependency recovers)
const (
	// ErrCodeTimeout indicates an operation exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeCircuitOpen indicates a breaker rejected the call without running it.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrCodeRateLimited indicates the admission gate denied the request.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeBulkheadFull indicates no concurrency slot was available.
	ErrCodeBulkheadFull ErrorCode = "BULKHEAD_FULL"
)

// Bound errors (recovered locally, surfaced only for reporting)
const (
	// ErrCodeCycleDetected indicates a traversal followed an edge back onto its own path.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
	// ErrCodeBoundExceeded indicates a depth, iteration or time bound tripped.
	ErrCodeBoundExceeded ErrorCode = "BOUND_EXCEEDED"
)

// Lifecycle errors
const (
	// ErrCodeShutdown indicates the supervised loop is draining or stopped.
	ErrCodeShutdown ErrorCode = "SHUTDOWN"
	// ErrCodeCanceled indicates the caller cancelled the operation.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInvalidConfig indicates a component was configured with invalid parameters.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeExternalService indicates an error from a guarded dependency.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:         true,
	ErrCodeCircuitOpen:     true,
	ErrCodeRateLimited:     true,
	ErrCodeBulkheadFull:    true,
	ErrCodeExternalService: true,
	ErrCodeInternal:        false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
