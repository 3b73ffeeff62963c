package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Shutdown returns a handler that triggers fn and answers 202 without
// waiting for the shutdown to finish. fn must be idempotent.
func Shutdown(fn func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn()
		c.JSON(http.StatusAccepted, gin.H{"status": "shutting_down"})
	}
}
