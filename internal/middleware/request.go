package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	contextReqIDKey = "requestID"
)

// RequestID tags each request with an id, reusing the caller's header when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(contextReqIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(contextReqIDKey)
}

func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request completed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"request_id", RequestIDFromContext(c),
			"duration", time.Since(start).String(),
		)
	}
}
