package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"checkin-keeper/internal/auth"
	"checkin-keeper/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditMiddleware creates audit logs for all mutating requests
func AuditMiddleware(auditor *models.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Reads are not audited
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" {
			c.Next()
			return
		}

		// Capture request body for audit (cap size)
		var bodyBytes []byte
		if c.Request.Body != nil {
			limited := io.LimitReader(c.Request.Body, 1<<20) // 1MB cap
			bodyBytes, _ = io.ReadAll(limited)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		requestID := c.GetString("request_id")
		if requestID == "" {
			requestID = uuid.NewString()
			c.Set("request_id", requestID)
		}

		c.Next()

		// Log after request completes
		event := createAuditEvent(c, bodyBytes, start, requestID)
		auditor.LogAsync(event)
	}
}

// createAuditEvent creates an audit event from the request context
func createAuditEvent(c *gin.Context, bodyBytes []byte, start time.Time, requestID string) *models.AuditEvent {
	event := &models.AuditEvent{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: requestID,
		Success:   c.Writer.Status() < 400,
		CreatedAt: time.Now(),
	}

	if claims, exists := c.Get("claims"); exists {
		if cl, ok := claims.(*auth.Claims); ok {
			event.UserID = cl.UserID
		}
	}

	event.Action = mapHTTPMethodToAction(c.Request.Method, c.Request.URL.Path)
	event.Resource, event.ResourceID = extractResourceFromPath(c.Request.URL.Path)

	if !event.Success {
		event.ErrorMessage = http.StatusText(c.Writer.Status())
	}

	event.Changes = extractChangesFromBody(bodyBytes, event.Action)

	return event
}

// mapHTTPMethodToAction maps HTTP methods to audit actions
func mapHTTPMethodToAction(method, path string) string {
	// Check-in runs and batch runs are executions, not resource creations
	if method == "POST" && strings.Contains(path, "/checkin") {
		return "EXECUTE"
	}

	switch method {
	case "POST":
		return "CREATE"
	case "PUT", "PATCH":
		return "UPDATE"
	case "DELETE":
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// extractResourceFromPath extracts resource type and ID from URL path
func extractResourceFromPath(path string) (string, string) {
	switch {
	case strings.Contains(path, "/api/auth/"):
		return "auth", ""
	case strings.Contains(path, "/api/accounts"):
		return "account", extractIDFromPath(path)
	case strings.Contains(path, "/api/providers"):
		return "provider", extractIDFromPath(path)
	case strings.Contains(path, "/api/checkin"):
		return "checkin", extractIDFromPath(path)
	case strings.Contains(path, "/api/tokens"):
		return "token", extractIDFromPath(path)
	case strings.Contains(path, "/api/notifications"):
		return "notification", extractIDFromPath(path)
	case strings.Contains(path, "/api/export"):
		return "export", ""
	default:
		return "unknown", ""
	}
}

// extractIDFromPath extracts ID from URL path
func extractIDFromPath(path string) string {
	// Look for UUID-like segments
	for _, part := range strings.Split(path, "/") {
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			return part
		}
	}
	return ""
}

// extractChangesFromBody extracts changes from request body
func extractChangesFromBody(bodyBytes []byte, action string) map[string]interface{} {
	if len(bodyBytes) == 0 || action == "DELETE" {
		return nil
	}

	var body map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil
	}

	// Redact sensitive fields
	sensitiveFields := []string{"password", "token", "secret", "key", "cookie", "cookies", "credential"}
	filteredBody := make(map[string]interface{})

	for key, value := range body {
		if containsSensitiveField(key, sensitiveFields) {
			filteredBody[key] = "[REDACTED]"
		} else {
			filteredBody[key] = value
		}
	}

	return filteredBody
}

// containsSensitiveField checks if a field name is sensitive
func containsSensitiveField(field string, sensitiveFields []string) bool {
	fieldLower := strings.ToLower(field)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldLower, sensitive) {
			return true
		}
	}
	return false
}
