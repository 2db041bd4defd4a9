package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// Inbound IDs longer than this are replaced rather than echoed back.
const maxInboundIDLen = 64

// RequestIDMiddleware tags every request with an ID that flows through
// logs, audit records, and the response header. A caller-supplied ID is
// honored so the desktop client can correlate its own retries.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxInboundIDLen {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		// Handlers that log through the context logger pick up the ID
		// without threading it by hand.
		reqLogger := slog.Default().With("request_id", requestID)
		c.Set("logger", reqLogger)

		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestIDMiddleware, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// GetLogger returns the request-scoped logger, falling back to the
// process default when the middleware did not run.
func GetLogger(c *gin.Context) *slog.Logger {
	if l, ok := c.Get("logger"); ok {
		if logger, ok := l.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
