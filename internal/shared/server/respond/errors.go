package respond

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"letters-backend/internal/shared/telemetry"
)

// ErrorBody is the error object every endpoint returns.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse is the envelope around ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// FieldIssue points a validation failure at one request field.
type FieldIssue struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// Issues builds details for a single field.
func Issues(field, issue string) []FieldIssue {
	return []FieldIssue{{Field: field, Issue: issue}}
}

// Body renders the error envelope for callers outside gin, such as the
// Lambda entrypoint before the router exists.
func Body(code, message string) string {
	raw, err := json.Marshal(ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
	if err != nil {
		return `{"error":{"code":"internal","message":"unexpected server error"}}`
	}
	return string(raw)
}

// Error aborts the request with the error envelope. Client errors log at
// warn, server errors at error.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if message != "" {
		fields["message"] = message
	}
	for _, key := range []string{"operatorId", "batchId"} {
		if v := c.GetString(key); v != "" {
			fields[logKey(key)] = v
		}
	}
	if status >= 500 {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{Code: code, Message: message, Details: details},
	})
}

func logKey(ctxKey string) string {
	switch ctxKey {
	case "operatorId":
		return "operator_id"
	case "batchId":
		return "batch_id"
	default:
		return ctxKey
	}
}
