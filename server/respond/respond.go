// Package respond writes gin responses in the AppError envelope, mapping
// guard errors onto the error taxonomy.
package respond

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/boundguard/errors"
	"github.com/kbukum/boundguard/loop"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/resilience"
	"github.com/kbukum/boundguard/timeout"
)

// ToAppError maps framework errors onto AppErrors. AppErrors in the chain
// are returned as-is; unknown errors become internal errors.
func ToAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}

	var te *timeout.Error
	switch {
	case errors.As(err, &te):
		return apperrors.Timeout("operation", te.Timeout).WithCause(err)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperrors.CircuitOpen("dependency").WithCause(err)
	case errors.Is(err, resilience.ErrRateLimited):
		return apperrors.RateLimited("").WithCause(err)
	case errors.Is(err, resilience.ErrBulkheadFull), errors.Is(err, resilience.ErrBulkheadTimeout),
		errors.Is(err, queue.ErrQueueFull):
		return apperrors.BulkheadFull("").WithCause(err)
	case errors.Is(err, loop.ErrTooManyFailures), errors.Is(err, queue.ErrClosed):
		return apperrors.Shutdown("loop").WithCause(err)
	case errors.Is(err, context.Canceled):
		return apperrors.Canceled("request").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("request", 0).WithCause(err)
	}
	return apperrors.Internal(err)
}

// Error writes err as a structured AppError response.
func Error(c *gin.Context, err error) {
	appErr := ToAppError(err)
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}

// Abort is Error for middleware: the remaining handlers are skipped.
func Abort(c *gin.Context, err error) {
	appErr := ToAppError(err)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
}

// OK sends a 200 response with data as the body.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
