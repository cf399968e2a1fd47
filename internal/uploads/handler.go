// Package uploads lets the ERP push large scans straight to S3. The client
// asks for a presigned PUT, uploads, then registers the returned key on a
// batch through the imports API.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"letters-backend/internal/shared/server/respond"
	"letters-backend/internal/shared/telemetry"
	"letters-backend/internal/shared/util"
)

const (
	maxUploadBytes = 50 << 20
	urlTTL         = 15 * time.Minute
	defaultRegion  = "us-east-1"
	pdfContentType = "application/pdf"
	// Registered uploads must be readable through ObjectStore.Open, so they
	// share its scans/ layout.
	keyDir = "scans/uploads"
)

type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Handler struct {
	presign presigner
	bucket  string
	prefix  string
	newID   func() string
}

// NewHandler presigns into bucket. prefix must match the object store's.
func NewHandler(ctx context.Context, region, bucket, prefix string) (*Handler, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("uploads: S3_BUCKET is required")
	}
	if strings.TrimSpace(region) == "" {
		region = defaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("uploads: load aws config: %w", err)
	}
	return &Handler{
		presign: s3.NewPresignClient(s3.NewFromConfig(cfg)),
		bucket:  bucket,
		prefix:  strings.Trim(strings.TrimSpace(prefix), "/"),
		newID:   uuid.NewString,
	}, nil
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	S3Key            string `json:"s3Key"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

// RegisterRoutes is safe on a nil handler; the route then answers 503.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presignUpload)
}

// validate normalizes req and returns the sanitized file name.
func (req *presignRequest) validate() (string, []respond.FieldIssue) {
	req.FileName = strings.TrimSpace(req.FileName)
	req.ContentType = strings.ToLower(strings.TrimSpace(req.ContentType))

	var issues []respond.FieldIssue
	name, err := util.SanitizeFileName(req.FileName)
	switch {
	case req.FileName == "":
		issues = append(issues, respond.FieldIssue{Field: "fileName", Issue: "required"})
	case err != nil:
		issues = append(issues, respond.FieldIssue{Field: "fileName", Issue: "invalid"})
	}
	if req.ContentType != pdfContentType {
		issues = append(issues, respond.FieldIssue{Field: "contentType", Issue: "only application/pdf scans are accepted"})
	}
	if req.SizeBytes <= 0 || req.SizeBytes > maxUploadBytes {
		issues = append(issues, respond.FieldIssue{Field: "sizeBytes", Issue: fmt.Sprintf("must be between 1 and %d", maxUploadBytes)})
	}
	return name, issues
}

func (h *Handler) presignUpload(c *gin.Context) {
	if h == nil || h.presign == nil {
		respond.Error(c, http.StatusServiceUnavailable, "uploads_unavailable", "uploads not configured", nil)
		return
	}

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	name, issues := req.validate()
	if len(issues) > 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid upload request", issues)
		return
	}

	storageKey := path.Join(keyDir, h.newID()+"_"+name)
	objectKey := storageKey
	if h.prefix != "" {
		objectKey = h.prefix + "/" + storageKey
	}

	out, err := h.presign.PresignPutObject(c.Request.Context(), presignInput(h.bucket, objectKey, req.ContentType),
		func(o *s3.PresignOptions) { o.Expires = urlTTL })
	if err != nil {
		telemetry.Error("uploads.presign_failed", map[string]any{
			"error":      err.Error(),
			"bucket":     h.bucket,
			"key":        objectKey,
			"size_bytes": req.SizeBytes,
			"request_id": c.GetString("requestId"),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	telemetry.Info("uploads.presigned", map[string]any{
		"key":         storageKey,
		"size_bytes":  req.SizeBytes,
		"operator_id": c.GetString("operatorId"),
	})
	respond.OK(c, presignResponse{
		UploadURL:        out.URL,
		S3Key:            storageKey,
		ExpiresInSeconds: int64(urlTTL / time.Second),
	})
}

// presignInput leaves Content-Length unsigned so browsers can PUT the file
// without matching a declared size byte for byte.
func presignInput(bucket, key, contentType string) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	return in
}
