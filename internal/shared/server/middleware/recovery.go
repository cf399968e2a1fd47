package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"letters-backend/internal/shared/server/respond"
	"letters-backend/internal/shared/telemetry"
)

// Recovery turns a panic into a 500 and logs it with the stack of the
// recovering goroutine.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if ok {
				err = errors.WithStack(err)
			} else {
				err = errors.Errorf("panic: %v", rec)
			}
			fields := map[string]any{
				"request_id":  RequestIDFromContext(c),
				"path":        c.Request.URL.Path,
				"method":      c.Request.Method,
				"operator_id": OperatorIDFromContext(c),
			}
			if batchID, exists := c.Get("batchId"); exists {
				fields["batch_id"] = batchID
			}
			telemetry.ErrorStack("request.panic", err, fields)
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
			c.Abort()
		}()
		c.Next()
	}
}
