package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad key", http.StatusBadRequest)
	if err.Code != ErrCodeInvalidInput {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidInput, err.Code)
	}
	if err.Message != "bad key" {
		t.Errorf("expected message 'bad key', got %q", err.Message)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("INVALID_INPUT should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestAppError_Timeout_Details(t *testing.T) {
	err := Timeout("fetch", 250*time.Millisecond)
	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", err.HTTPStatus)
	}
	if err.Details["timeout_ms"] != int64(250) {
		t.Errorf("expected timeout_ms=250, got %v", err.Details["timeout_ms"])
	}
	if !strings.Contains(err.Message, "250ms") {
		t.Errorf("expected message to mention 250ms, got %q", err.Message)
	}
}

func TestAppError_RateLimited_EmptyKey(t *testing.T) {
	err := RateLimited("")
	if _, ok := err.Details["key"]; ok {
		t.Error("expected no key detail for empty key")
	}
	if RateLimited("client-1").Details["key"] != "client-1" {
		t.Error("expected key detail to be set")
	}
}

func TestAppError_WithCause_Chain(t *testing.T) {
	root := fmt.Errorf("connection refused")
	err := ExternalServiceError("queue", nil).WithCause(root)
	if !stderrors.Is(err, root) {
		t.Error("expected errors.Is to find the root cause")
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := CircuitOpen("payments").WithDetails(map[string]any{"retry_after_ms": 500})
	if err.Details["breaker"] != "payments" {
		t.Errorf("expected breaker=payments, got %v", err.Details["breaker"])
	}
	if err.Details["retry_after_ms"] != 500 {
		t.Errorf("expected retry_after_ms=500, got %v", err.Details["retry_after_ms"])
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := &AppError{Code: ErrCodeInternal}
	err.WithDetail("k", "v")
	if err.Details["k"] != "v" {
		t.Errorf("expected k=v, got %v", err.Details["k"])
	}
}

func TestAppError_Error_Format(t *testing.T) {
	err := Shutdown("worker")
	if got := err.Error(); got != "SHUTDOWN: worker is shutting down." {
		t.Errorf("unexpected error string %q", got)
	}
	withCause := Internal(fmt.Errorf("boom"))
	if !strings.Contains(withCause.Error(), "(cause: boom)") {
		t.Errorf("expected cause in error string, got %q", withCause.Error())
	}
}

func TestAppError_Constructors_Table(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       ErrorCode
		httpStatus int
		retryable  bool
	}{
		{"Timeout", Timeout("op", time.Second), ErrCodeTimeout, http.StatusGatewayTimeout, true},
		{"CircuitOpen", CircuitOpen("cb"), ErrCodeCircuitOpen, http.StatusServiceUnavailable, true},
		{"RateLimited", RateLimited("k"), ErrCodeRateLimited, http.StatusTooManyRequests, true},
		{"BulkheadFull", BulkheadFull("bh"), ErrCodeBulkheadFull, http.StatusServiceUnavailable, true},
		{"CycleDetected", CycleDetected("a"), ErrCodeCycleDetected, http.StatusUnprocessableEntity, false},
		{"BoundExceeded", BoundExceeded("depth", 10), ErrCodeBoundExceeded, http.StatusUnprocessableEntity, false},
		{"Shutdown", Shutdown("loop"), ErrCodeShutdown, http.StatusServiceUnavailable, false},
		{"Canceled", Canceled("op"), ErrCodeCanceled, 499, false},
		{"InvalidConfig", InvalidConfig("breaker", "x"), ErrCodeInvalidConfig, http.StatusInternalServerError, false},
		{"Internal", Internal(nil), ErrCodeInternal, http.StatusInternalServerError, false},
		{"ExternalServiceError", ExternalServiceError("svc", nil), ErrCodeExternalService, http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.HTTPStatus != tt.httpStatus {
				t.Errorf("expected status %d, got %d", tt.httpStatus, tt.err.HTTPStatus)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, tt.err.Retryable)
			}
		})
	}
}

func TestErrorCode_IsRetryableCode_Table(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeCircuitOpen, true},
		{ErrCodeRateLimited, true},
		{ErrCodeCycleDetected, false},
		{ErrCodeShutdown, false},
		{ErrCodeInternal, false},
		{ErrorCode("UNKNOWN"), false},
	}
	for _, tt := range tests {
		if got := IsRetryableCode(tt.code); got != tt.want {
			t.Errorf("IsRetryableCode(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestAppError_ToResponse_Success(t *testing.T) {
	resp := RateLimited("ip").ToResponse()
	if resp.Error.Code != ErrCodeRateLimited {
		t.Errorf("expected RATE_LIMITED, got %s", resp.Error.Code)
	}
	if !resp.Error.Retryable {
		t.Error("expected retryable response")
	}
}

func TestAppError_AsAppError_Success(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Internal(nil))
	got, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to succeed for wrapped AppError")
	}
	if got.Code != ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", got.Code)
	}

	if _, ok = AsAppError(fmt.Errorf("not an app error")); ok {
		t.Error("expected AsAppError to return false for non-AppError")
	}
	if IsAppError(fmt.Errorf("plain")) {
		t.Error("expected IsAppError to be false for plain error")
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrap_AppErrorPassthrough(t *testing.T) {
	orig := CircuitOpen("db")
	if got := Wrap(fmt.Errorf("outer: %w", orig)); got != orig {
		t.Error("Wrap should return the wrapped AppError unchanged")
	}
}

func TestWrap_PlainError(t *testing.T) {
	plain := fmt.Errorf("something broke")
	got := Wrap(plain)
	if got.Code != ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", got.Code)
	}
	if got.Cause != plain {
		t.Error("expected cause to be the original error")
	}
}
