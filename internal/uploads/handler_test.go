package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
)

func testPresigner() *s3.PresignClient {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")),
	}
	return s3.NewPresignClient(s3.NewFromConfig(cfg))
}

func TestPresignSignedHeadersExcludeContentLength(t *testing.T) {
	out, err := testPresigner().PresignPutObject(context.Background(), presignInput("bucket", "scans/uploads/id_file.pdf", ""))
	if err != nil {
		t.Fatalf("presign: %v", err)
	}

	parsed, err := url.Parse(out.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	signed := parsed.Query().Get("X-Amz-SignedHeaders")
	if signed == "" {
		t.Fatalf("expected X-Amz-SignedHeaders")
	}
	if strings.Contains(signed, "content-length") {
		t.Fatalf("unexpected content-length in signed headers: %s", signed)
	}
	if !strings.Contains(signed, "host") {
		t.Fatalf("expected host in signed headers: %s", signed)
	}
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postPresign(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/presign", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPresignReturnsScanKey(t *testing.T) {
	h := &Handler{presign: testPresigner(), bucket: "letters", prefix: "prod", newID: func() string { return "fixed" }}
	w := postPresign(newTestRouter(h), `{"fileName":"Batch 1.pdf","contentType":"application/pdf","sizeBytes":1024}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp presignResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.S3Key, "scans/uploads/fixed_") {
		t.Fatalf("unexpected key %q", resp.S3Key)
	}
	if !strings.Contains(resp.UploadURL, "/prod/scans/uploads/fixed_") {
		t.Fatalf("object key should carry the store prefix: %s", resp.UploadURL)
	}
}

func TestPresignRejectsNonPDF(t *testing.T) {
	h := &Handler{presign: testPresigner(), bucket: "letters", newID: func() string { return "x" }}
	w := postPresign(newTestRouter(h), `{"fileName":"a.docx","contentType":"application/msword","sizeBytes":10}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPresignRejectsOversizedScan(t *testing.T) {
	h := &Handler{presign: testPresigner(), bucket: "letters", newID: func() string { return "x" }}
	w := postPresign(newTestRouter(h), `{"fileName":"a.pdf","contentType":"application/pdf","sizeBytes":104857600}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPresignWithoutConfiguration(t *testing.T) {
	var h *Handler
	w := postPresign(newTestRouter(h), `{"fileName":"a.pdf","contentType":"application/pdf","sizeBytes":10}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestPresignReportsEveryInvalidField(t *testing.T) {
	h := &Handler{presign: testPresigner(), bucket: "letters", newID: func() string { return "x" }}
	w := postPresign(newTestRouter(h), `{"fileName":"","contentType":"text/plain","sizeBytes":0}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp struct {
		Error struct {
			Details []struct {
				Field string `json:"field"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Error.Details) != 3 {
		t.Fatalf("expected 3 field issues, got %s", w.Body.String())
	}
}
