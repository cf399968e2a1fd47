package letters

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"letters-backend/internal/documents"
	"letters-backend/internal/importconfig"
	"letters-backend/internal/shared/server/middleware"
	"letters-backend/internal/shared/server/respond"
)

const maxScanBytes = 50 << 20

// Handler wires HTTP handlers to the import service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches import routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/import-profiles", h.listProfiles)

	imports := rg.Group("/imports")
	imports.POST("", h.create)
	imports.GET("", h.list)
	imports.GET("/:id", h.get)
	imports.DELETE("/:id", h.delete)
	imports.POST("/:id/documents", h.uploadDocuments)
	imports.POST("/:id/documents/from-s3", h.registerDocument)
	imports.POST("/:id/import", h.startImport)
	imports.POST("/:id/save", h.save)
	imports.GET("/:id/lines", h.listLines)
	imports.PATCH("/:id/lines/:lineId", h.updateLine)
	imports.GET("/:id/letters", h.listLetters)
}

func (h *Handler) batchID(c *gin.Context) string {
	id := strings.TrimSpace(c.Param("id"))
	if id != "" {
		c.Set("batchId", id)
	}
	return id
}

func requestContext(c *gin.Context) *gin.Context {
	c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c)))
	return c
}

func (h *Handler) create(c *gin.Context) {
	var req CreateBatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
			return
		}
	}
	requestContext(c)
	batch, err := h.Svc.Create(c.Request.Context(), CreateInput{
		ConfigID:  req.ConfigID,
		CreatedBy: middleware.OperatorIDFromContext(c),
	})
	if err != nil {
		writeError(c, err, "failed to create import")
		return
	}
	c.Set("batchId", batch.ID)
	c.Set("stateTransition", "create")
	respond.Created(c, ToBatchResponse(View{Batch: batch}))
}

func (h *Handler) list(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	limit, offset = Page(limit, offset)
	views, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err, "failed to list imports")
		return
	}
	items := make([]BatchResponse, 0, len(views))
	for _, v := range views {
		items = append(items, ToBatchResponse(v))
	}
	respond.OK(c, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) get(c *gin.Context) {
	id := h.batchID(c)
	view, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to fetch import")
		return
	}
	respond.OK(c, ToBatchResponse(view))
}

func (h *Handler) delete(c *gin.Context) {
	id := h.batchID(c)
	c.Set("stateTransition", "delete")
	if err := h.Svc.Delete(requestContext(c).Request.Context(), id); err != nil {
		writeError(c, err, "failed to delete import")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) uploadDocuments(c *gin.Context) {
	id := h.batchID(c)
	form, err := c.MultipartForm()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart form with files is required", nil)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "at least one file is required", nil)
		return
	}

	requestContext(c)
	out := make([]documents.DocumentResponse, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxScanBytes {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "scan exceeds the upload limit", respond.Issues("files", fh.Filename))
			return
		}
		f, err := fh.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read uploaded file", nil)
			return
		}
		doc, err := h.Svc.AddDocument(c.Request.Context(), id, fh.Filename, f)
		f.Close()
		if err != nil {
			writeError(c, err, "failed to upload document")
			return
		}
		out = append(out, documents.ToResponse(doc))
	}
	respond.Created(c, gin.H{"documents": out})
}

func (h *Handler) registerDocument(c *gin.Context) {
	id := h.batchID(c)
	var req RegisterDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if strings.TrimSpace(req.S3Key) == "" || strings.TrimSpace(req.OriginalFileName) == "" || req.SizeBytes <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "s3Key, originalFileName and sizeBytes are required", nil)
		return
	}
	if req.SizeBytes > maxScanBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "scan exceeds the upload limit", nil)
		return
	}
	doc, err := h.Svc.RegisterDocument(requestContext(c).Request.Context(), id, RegisterInput{
		StorageKey:  req.S3Key,
		FileName:    req.OriginalFileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeError(c, err, "failed to register document")
		return
	}
	respond.Created(c, documents.ToResponse(doc))
}

func (h *Handler) startImport(c *gin.Context) {
	id := h.batchID(c)
	c.Set("stateTransition", "import")
	batch, err := h.Svc.StartImport(requestContext(c).Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to start import")
		return
	}
	respond.Accepted(c, gin.H{
		"batchId": batch.ID,
		"state":   batch.State,
		"queued":  true,
	})
}

func (h *Handler) save(c *gin.Context) {
	id := h.batchID(c)
	c.Set("stateTransition", "save")
	created, err := h.Svc.Save(requestContext(c).Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to save import")
		return
	}
	items := make([]LetterResponse, 0, len(created))
	for _, l := range created {
		items = append(items, ToLetterResponse(l))
	}
	respond.OK(c, gin.H{"batchId": id, "state": StateDone, "letters": items})
}

func (h *Handler) listLines(c *gin.Context) {
	id := h.batchID(c)
	lines, err := h.Svc.ListLines(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to list lines")
		return
	}
	items := make([]LineResponse, 0, len(lines))
	for _, l := range lines {
		items = append(items, ToLineResponse(l))
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) updateLine(c *gin.Context) {
	id := h.batchID(c)
	lineID := strings.TrimSpace(c.Param("lineId"))
	c.Set("lineId", lineID)
	var req UpdateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	line, err := h.Svc.UpdateLine(requestContext(c).Request.Context(), id, lineID, req.ToUpdate())
	if err != nil {
		writeError(c, err, "failed to update line")
		return
	}
	respond.OK(c, ToLineResponse(line))
}

func (h *Handler) listLetters(c *gin.Context) {
	id := h.batchID(c)
	created, err := h.Svc.ListLetters(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to list letters")
		return
	}
	items := make([]LetterResponse, 0, len(created))
	for _, l := range created {
		items = append(items, ToLetterResponse(l))
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) listProfiles(c *gin.Context) {
	respond.OK(c, gin.H{"items": h.Svc.ListProfiles()})
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, documents.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "import not found", nil)
	case errors.Is(err, ErrImportAlreadyOpen):
		respond.Error(c, http.StatusConflict, "import_already_open", "an import with this configuration is not finished", nil)
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusConflict, "not_ready", "some letters are not ready", nil)
	case errors.Is(err, ErrNothingToSave):
		respond.Error(c, http.StatusConflict, "nothing_to_save", "the import has no letters to save", nil)
	case errors.Is(err, ErrImportRunning):
		respond.Error(c, http.StatusConflict, "import_running", "the import is being analyzed", nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, importconfig.ErrUnknownProfile):
		respond.Error(c, http.StatusBadRequest, "unknown_profile", "unknown import configuration", respond.Issues("configId", "unknown"))
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrJobQueueNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "job queue not configured", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
