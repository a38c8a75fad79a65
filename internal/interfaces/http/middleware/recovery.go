package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// Recovery turns a handler panic into a 500 with the standard error body.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := GetRequestID(c)
				logger.Error("panic recovered",
					logging.String("panic", fmt.Sprint(rec)),
					logging.String("request_id", requestID),
					logging.String("method", c.Request.Method),
					logging.String("path", c.Request.URL.Path),
					logging.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":       string(errors.ErrCodeInternal),
					"message":    "internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}

//Personal.AI order the ending
