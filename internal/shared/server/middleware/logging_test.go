package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"letters-backend/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	telemetry.Configure(&buf, "info")
	defer telemetry.Configure(os.Stdout, "info")

	router := gin.New()
	router.Use(RequestID(), Auth("dev"), Logging())
	router.POST("/test", func(c *gin.Context) {
		c.Set("batchId", "batch-1")
		c.Set("lineId", "line-1")
		c.Set("stateTransition", "draft->pending")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set("X-Operator-Id", "ana")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatalf("expected log output")
	}
	last := lines[len(lines)-1]
	var payload map[string]any
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}

	required := []string{"request_id", "operator_id", "batch_id", "line_id", "duration_ms", "status", "state_transition", "ts"}
	for _, key := range required {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field: %s", key)
		}
	}
	if payload["operator_id"] != "dev:ana" {
		t.Fatalf("unexpected operator_id: %v", payload["operator_id"])
	}
	if payload["batch_id"] != "batch-1" {
		t.Fatalf("unexpected batch_id: %v", payload["batch_id"])
	}
	if payload["state_transition"] != "draft->pending" {
		t.Fatalf("unexpected state_transition: %v", payload["state_transition"])
	}
	if payload["message"] != "request.complete" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
}
