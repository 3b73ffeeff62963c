package endpoint

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/boundguard/errors"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/server/respond"
)

// Enqueue returns a handler that pushes the request body onto p. The "key"
// query parameter becomes the item key. validate, when set, rejects a body
// before it is queued. A full or closed queue answers with its taxonomy error.
func Enqueue(p queue.Pusher, validate func([]byte) error, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes))
		if err != nil {
			respond.Error(c, apperrors.InvalidInput("body", err.Error()))
			return
		}
		if validate != nil {
			if err := validate(body); err != nil {
				respond.Error(c, err)
				return
			}
		}

		item := queue.NewItem(c.Query("key"), body)
		if err := p.Push(c.Request.Context(), item); err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": item.ID, "key": item.Key})
	}
}
