package endpoint

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/boundguard/server/respond"
	"github.com/kbukum/boundguard/status"
)

// Status returns a handler serving the registry's status document.
func Status(reg *status.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond.OK(c, reg.Snapshot())
	}
}
