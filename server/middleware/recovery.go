package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/server/respond"
)

// Recovery returns a Gin middleware that recovers from panics and logs the
// stack. A nil log uses the global logger.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log, "server")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", logger.Fields(
					logger.FieldError, fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					logger.FieldRequestID, c.GetString(RequestIDKey),
				))
				respond.Abort(c, fmt.Errorf("panic: %v", r))
			}
		}()
		c.Next()
	}
}
