package logger

import (
	"fmt"
	"time"
)

// Standard field key constants for structured logging.
const (
	FieldService    = "service"
	FieldComponent  = "component"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
	FieldRequestID  = "request_id"
	FieldOperation  = "operation"
	FieldError      = "error"
	FieldErrorCode  = "error_code"
	FieldDuration   = "duration_ms"
	FieldBreaker    = "breaker"
	FieldFrom       = "from"
	FieldTo         = "to"
	FieldState      = "state"
	FieldCollection = "collection"
	FieldEvicted    = "evicted"
	FieldKey        = "key"
	FieldLoop       = "loop"
	FieldItemID     = "item_id"
	FieldAttempt    = "attempt"
	FieldBackoff    = "backoff_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	logger.Info("evicted", logger.Fields("collection", "history", "count", 100))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}

// TransitionFields creates fields for a state machine transition.
func TransitionFields(name string, from, to fmt.Stringer) map[string]interface{} {
	return map[string]interface{}{
		FieldComponent: name,
		FieldFrom:      from.String(),
		FieldTo:        to.String(),
	}
}
