package letters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"letters-backend/internal/barcode"
	"letters-backend/internal/documents"
	"letters-backend/internal/importconfig"
	"letters-backend/internal/progress"
	"letters-backend/internal/queue"
	"letters-backend/internal/registry"
	"letters-backend/internal/shared/metrics"
	"letters-backend/internal/shared/storage/object"
	"letters-backend/internal/shared/telemetry"
)

const (
	defaultRunningWindow = 30 * time.Minute
	pdfContentType       = "application/pdf"
	// Presigned uploads land here; scans stored by AddDocument live under
	// their own batch and must never be registered elsewhere.
	uploadKeyPrefix = "scans/uploads/"
)

// IdentityExtractor decodes the partner and child codes of one scanned letter.
type IdentityExtractor interface {
	Extract(ctx context.Context, data []byte, fileName string) (barcode.Result, error)
}

// Service drives import batches from upload to saved letters.
type Service struct {
	Repo      Repo
	Documents *documents.Service
	Store     object.ObjectStore
	Registry  registry.Registry
	Extractor IdentityExtractor
	Profiles  *importconfig.Catalog
	Queue     queue.Client
	Progress  progress.Tracker
	Now       func() time.Time
	NewID     func() string
	// RunningWindow bounds how long a progress entry marked running blocks a
	// new import or a delete. Zero means 30 minutes.
	RunningWindow time.Duration
}

// CreateInput describes a new batch.
type CreateInput struct {
	ConfigID  string
	CreatedBy string
}

// RegisterInput describes a scan uploaded directly to object storage.
type RegisterInput struct {
	StorageKey  string
	FileName    string
	ContentType string
	SizeBytes   int64
}

// SkippedDocument records a document the extractor could not turn into a line.
type SkippedDocument struct {
	FileName string
	Kind     string
	Error    string
}

// RunSummary reports what one import run did.
type RunSummary struct {
	BatchID      string
	Total        int
	Processed    int
	LinesCreated int
	Skipped      []SkippedDocument
	Completed    bool
}

// Create opens a draft batch, copying the template of the chosen profile.
func (s *Service) Create(ctx context.Context, input CreateInput) (Batch, error) {
	configID := strings.TrimSpace(input.ConfigID)
	batch := Batch{
		ID:        s.newID(),
		ConfigID:  configID,
		State:     StateDraft,
		CreatedBy: input.CreatedBy,
		CreatedAt: s.now(),
	}
	batch.UpdatedAt = batch.CreatedAt
	if configID != "" {
		if s.Profiles == nil {
			return Batch{}, fmt.Errorf("%w: %s", importconfig.ErrUnknownProfile, configID)
		}
		profile, err := s.Profiles.Get(configID)
		if err != nil {
			return Batch{}, err
		}
		batch.TemplateID = profile.TemplateID
	}
	if err := s.Repo.CreateBatch(ctx, batch); err != nil {
		return Batch{}, err
	}
	telemetry.Info("import.batch_created", s.fields(ctx, batch.ID, map[string]any{
		"config_id":  configID,
		"created_by": input.CreatedBy,
	}))
	return batch, nil
}

// AddDocument uploads a scan into a batch.
func (s *Service) AddDocument(ctx context.Context, batchID, fileName string, r io.Reader) (documents.Document, error) {
	if !isPDF(fileName) {
		return documents.Document{}, fmt.Errorf("%w: only PDF scans are accepted", ErrInvalidInput)
	}
	if err := s.checkAddDocuments(ctx, batchID); err != nil {
		return documents.Document{}, err
	}
	doc, err := s.Documents.Upload(ctx, batchID, fileName, r)
	if errors.Is(err, documents.ErrInvalidInput) {
		return documents.Document{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return doc, err
}

// RegisterDocument attaches a scan that was uploaded with a presigned URL.
func (s *Service) RegisterDocument(ctx context.Context, batchID string, input RegisterInput) (documents.Document, error) {
	key := input.StorageKey
	if !strings.HasPrefix(key, uploadKeyPrefix) || path.Clean(key) != key || path.Dir(key) != strings.TrimSuffix(uploadKeyPrefix, "/") {
		return documents.Document{}, fmt.Errorf("%w: storage key must be a presigned upload", ErrInvalidInput)
	}
	if !isPDF(input.FileName) {
		return documents.Document{}, fmt.Errorf("%w: only PDF scans are accepted", ErrInvalidInput)
	}
	if err := s.checkAddDocuments(ctx, batchID); err != nil {
		return documents.Document{}, err
	}
	contentType := input.ContentType
	if contentType == "" {
		contentType = pdfContentType
	}
	doc, err := s.Documents.Register(ctx, batchID, key, input.FileName, contentType, input.SizeBytes)
	if errors.Is(err, documents.ErrInvalidInput) || errors.Is(err, documents.ErrKeyInUse) {
		return documents.Document{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return doc, err
}

func (s *Service) checkAddDocuments(ctx context.Context, batchID string) error {
	batch, err := s.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	return GuardAddDocuments(batch)
}

// StartImport queues an import run for the batch.
func (s *Service) StartImport(ctx context.Context, batchID string) (Batch, error) {
	batch, err := s.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	if err := GuardStartImport(batch); err != nil {
		return Batch{}, err
	}
	if s.Queue == nil {
		return Batch{}, ErrJobQueueNotConfigured
	}
	if s.isRunning(ctx, batchID) {
		return Batch{}, ErrImportRunning
	}

	total := 0
	if s.Documents != nil {
		if total, err = s.Documents.Count(ctx, batchID); err != nil {
			return Batch{}, err
		}
	}
	s.updateProgress(ctx, progress.Progress{BatchID: batchID, Total: total, Running: true})

	msg := queue.NewMessage(batchID, requestIDFromContext(ctx), s.now())
	if err := s.Queue.Send(ctx, msg); err != nil {
		s.clearProgress(ctx, batchID)
		return Batch{}, fmt.Errorf("enqueue import: %w", err)
	}
	telemetry.Info("import.enqueued", s.fields(ctx, batchID, map[string]any{"documents": total}))
	return batch, nil
}

// ProcessBatch runs an import for a queued message.
func (s *Service) ProcessBatch(ctx context.Context, batchID string) error {
	_, err := s.RunImport(ctx, batchID)
	return err
}

// RunImport analyzes every document of the batch in upload order. Each decoded
// letter is committed as a line before the next document is read. Extraction
// failures skip the document; storage, registry and persistence failures stop
// the run and leave already committed lines in place. A run on a completed
// batch does nothing, so redelivered queue messages are harmless.
func (s *Service) RunImport(ctx context.Context, batchID string) (RunSummary, error) {
	summary := RunSummary{BatchID: batchID}
	batch, err := s.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return summary, err
	}
	if batch.ImportCompleted || batch.State == StateDone {
		telemetry.Info("import.run_skipped", s.fields(ctx, batchID, map[string]any{"state": string(batch.State)}))
		summary.Completed = true
		return summary, nil
	}

	started := s.now()
	metrics.IncBatchStarted()
	telemetry.Info("import.run_started", s.fields(ctx, batchID, nil))

	enum := Enumerator{Documents: s.Documents, BatchID: batchID}
	for src, err := range enum.All(ctx) {
		if errors.Is(err, ErrDocumentMissing) {
			summary.Total = src.Total
			summary.Skipped = append(summary.Skipped, s.skipMissing(ctx, batchID, src, err))
			continue
		}
		if err != nil {
			return summary, s.failRun(ctx, summary, err)
		}
		summary.Total = src.Total
		s.updateProgress(ctx, progress.Progress{
			BatchID:   batchID,
			Index:     src.Index,
			Total:     src.Total,
			FileName:  src.Name,
			Processed: summary.Processed,
			Skipped:   len(summary.Skipped),
			Running:   true,
		})

		skipped, err := s.importDocument(ctx, batch, src)
		if err != nil {
			return summary, s.failRun(ctx, summary, err)
		}
		if skipped != nil {
			summary.Skipped = append(summary.Skipped, *skipped)
			continue
		}
		summary.Processed++
		summary.LinesCreated++
	}

	if _, err := s.Documents.Purge(ctx, batchID); err != nil {
		return summary, s.failRun(ctx, summary, fmt.Errorf("purge documents: %w", err))
	}
	if err := s.Repo.MarkImportCompleted(ctx, batchID); err != nil {
		return summary, s.failRun(ctx, summary, fmt.Errorf("mark import completed: %w", err))
	}
	summary.Completed = true

	elapsed := s.now().Sub(started)
	metrics.IncBatchCompleted()
	metrics.ObserveBatchDurationMs(float64(elapsed.Milliseconds()))
	s.updateProgress(ctx, progress.Progress{
		BatchID:   batchID,
		Index:     summary.Total,
		Total:     summary.Total,
		Processed: summary.Processed,
		Skipped:   len(summary.Skipped),
	})
	telemetry.Info("import.run_completed", s.fields(ctx, batchID, map[string]any{
		"documents":   summary.Total,
		"lines":       summary.LinesCreated,
		"skipped":     len(summary.Skipped),
		"duration_ms": elapsed.Milliseconds(),
	}))
	return summary, nil
}

// importDocument turns one scan into a committed line. A non-nil
// SkippedDocument means the extractor rejected it and the run goes on.
func (s *Service) importDocument(ctx context.Context, batch Batch, src Source) (*SkippedDocument, error) {
	res, err := s.Extractor.Extract(ctx, src.Data, src.Name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		kind := barcode.Kind(err)
		telemetry.ErrorStack("import.document_skipped", err, s.fields(ctx, batch.ID, map[string]any{
			"file_name":   src.Name,
			"document_id": src.DocumentID,
			"index":       src.Index,
			"kind":        kind,
		}))
		metrics.IncDocumentSkipped()
		return &SkippedDocument{FileName: src.Name, Kind: kind, Error: err.Error()}, nil
	}

	partnerID, err := s.resolvePartner(ctx, res.PartnerCode)
	if err != nil {
		return nil, err
	}
	childID, err := s.resolveChild(ctx, res.ChildCode)
	if err != nil {
		return nil, err
	}

	line := Line{
		ID:          s.newID(),
		BatchID:     batch.ID,
		PartnerID:   partnerID,
		ChildID:     childID,
		PartnerCode: res.PartnerCode,
		ChildCode:   res.ChildCode,
		TemplateID:  batch.TemplateID,
		Status:      LineStatusOK,
		FileName:    src.Name,
		CreatedAt:   s.now(),
	}
	line.DocumentKey = lineKey(batch.ID, line.ID, ".pdf")
	if _, err := s.Store.SaveWithKey(ctx, line.DocumentKey, pdfContentType, bytes.NewReader(src.Data)); err != nil {
		return nil, fmt.Errorf("store letter %s: %w", src.Name, err)
	}
	if len(res.Preview) > 0 {
		line.PreviewKey = lineKey(batch.ID, line.ID, ".jpg")
		if _, err := s.Store.SaveWithKey(ctx, line.PreviewKey, res.PreviewType, bytes.NewReader(res.Preview)); err != nil {
			return nil, fmt.Errorf("store preview %s: %w", src.Name, err)
		}
	}
	if err := s.Repo.AppendLine(ctx, line); err != nil {
		return nil, fmt.Errorf("append line: %w", err)
	}
	metrics.IncDocumentProcessed()
	metrics.IncLinesCreated()
	return nil, nil
}

func (s *Service) skipMissing(ctx context.Context, batchID string, src Source, err error) SkippedDocument {
	telemetry.Warn("import.document_missing", s.fields(ctx, batchID, map[string]any{
		"file_name":   src.Name,
		"document_id": src.DocumentID,
		"index":       src.Index,
		"error":       err.Error(),
	}))
	metrics.IncDocumentSkipped()
	return SkippedDocument{FileName: src.Name, Kind: "missing_document", Error: err.Error()}
}

func (s *Service) resolvePartner(ctx context.Context, code string) (*int64, error) {
	if s.Registry == nil || code == "" {
		return nil, nil
	}
	p, err := s.Registry.FindPartnerByRef(ctx, code)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find partner %s: %w", code, err)
	}
	return &p.ID, nil
}

func (s *Service) resolveChild(ctx context.Context, code string) (*int64, error) {
	if s.Registry == nil || code == "" {
		return nil, nil
	}
	c, err := s.Registry.FindChildByCode(ctx, code)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find child %s: %w", code, err)
	}
	return &c.ID, nil
}

func (s *Service) failRun(ctx context.Context, summary RunSummary, err error) error {
	metrics.IncBatchFailed()
	telemetry.ErrorStack("import.run_failed", err, s.fields(ctx, summary.BatchID, map[string]any{
		"processed": summary.Processed,
		"skipped":   len(summary.Skipped),
	}))
	// The run context may be cancelled already; the failure must still be visible.
	s.updateProgress(context.WithoutCancel(ctx), progress.Progress{
		BatchID:   summary.BatchID,
		Total:     summary.Total,
		Processed: summary.Processed,
		Skipped:   len(summary.Skipped),
		Error:     err.Error(),
	})
	return err
}

// Save promotes every line of a ready batch into a letter.
func (s *Service) Save(ctx context.Context, batchID string) ([]Letter, error) {
	batch, err := s.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	created, err := s.Repo.PromoteLines(ctx, batchID, func(lines []Line) []Letter {
		now := s.now()
		out := make([]Letter, 0, len(lines))
		for _, l := range lines {
			templateID := l.TemplateID
			if templateID == "" {
				templateID = batch.TemplateID
			}
			out = append(out, Letter{
				ID:          s.newID(),
				BatchID:     batchID,
				PartnerID:   l.PartnerID,
				ChildID:     l.ChildID,
				TemplateID:  templateID,
				FileName:    l.FileName,
				DocumentKey: l.DocumentKey,
				PreviewKey:  l.PreviewKey,
				CreatedAt:   now,
			})
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	metrics.AddLettersSaved(len(created))
	s.clearProgress(ctx, batchID)
	telemetry.Info("import.saved", s.fields(ctx, batchID, map[string]any{"letters": len(created)}))
	return created, nil
}

// Get returns a batch with its counters and latest run progress.
func (s *Service) Get(ctx context.Context, batchID string) (View, error) {
	batch, err := s.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return View{}, err
	}
	view, err := s.view(ctx, batch)
	if err != nil {
		return View{}, err
	}
	if s.Progress != nil {
		p, ok, err := s.Progress.Get(ctx, batchID)
		if err != nil {
			telemetry.Warn("import.progress_read_failed", s.fields(ctx, batchID, map[string]any{"error": err.Error()}))
		} else if ok {
			view.Progress = &p
		}
	}
	return view, nil
}

// Page clamps list paging to the supported range.
func Page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return limit, max(offset, 0)
}

// List returns batches newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]View, error) {
	limit, offset = Page(limit, offset)
	batches, err := s.Repo.ListBatches(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(batches))
	for _, b := range batches {
		v, err := s.view(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, batch Batch) (View, error) {
	snap, err := s.Repo.Snapshot(ctx, batch.ID)
	if err != nil {
		return View{}, err
	}
	if s.Documents != nil {
		if snap.DocumentCount, err = s.Documents.Count(ctx, batch.ID); err != nil {
			return View{}, err
		}
	}
	batch.State = ComputeState(snap)
	return View{
		Batch:         batch,
		DocumentCount: snap.DocumentCount,
		LineCount:     len(snap.LineStatuses),
		LetterCount:   snap.LetterCount,
		FileCount:     FileCount(batch.State, snap),
	}, nil
}

// ListLines returns the batch's import lines for review.
func (s *Service) ListLines(ctx context.Context, batchID string) ([]Line, error) {
	return s.Repo.ListLines(ctx, batchID)
}

// UpdateLine applies an operator correction to a line.
func (s *Service) UpdateLine(ctx context.Context, batchID, lineID string, update LineUpdate) (Line, error) {
	if update.Status != nil && strings.TrimSpace(*update.Status) == "" {
		return Line{}, fmt.Errorf("%w: status must not be empty", ErrInvalidInput)
	}
	batch, err := s.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return Line{}, err
	}
	if err := GuardUpdateLine(batch.State); err != nil {
		return Line{}, err
	}
	line, err := s.Repo.UpdateLine(ctx, batchID, lineID, update)
	if err != nil {
		return Line{}, err
	}
	telemetry.Info("import.line_updated", s.fields(ctx, batchID, map[string]any{"line_id": lineID, "status": line.Status}))
	return line, nil
}

// ListLetters returns the letters saved from a batch.
func (s *Service) ListLetters(ctx context.Context, batchID string) ([]Letter, error) {
	return s.Repo.ListLetters(ctx, batchID)
}

// ListProfiles returns the import profiles operators can choose from.
func (s *Service) ListProfiles() []importconfig.Profile {
	if s.Profiles == nil {
		return []importconfig.Profile{}
	}
	return s.Profiles.List()
}

// Delete discards a batch that is not being analyzed and was never saved,
// together with its scans and line artifacts.
func (s *Service) Delete(ctx context.Context, batchID string) error {
	batch, err := s.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if err := GuardDelete(batch.State); err != nil {
		return err
	}
	if s.isRunning(ctx, batchID) {
		return ErrImportRunning
	}
	lines, err := s.Repo.ListLines(ctx, batchID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		for _, key := range []string{l.DocumentKey, l.PreviewKey} {
			if key == "" {
				continue
			}
			if err := s.Store.Delete(ctx, key); err != nil && !errors.Is(err, object.ErrNotFound) {
				telemetry.Warn("import.artifact_delete_failed", s.fields(ctx, batchID, map[string]any{
					"storage_key": key,
					"error":       err.Error(),
				}))
			}
		}
	}
	if s.Documents != nil {
		if _, err := s.Documents.Purge(ctx, batchID); err != nil {
			return err
		}
	}
	if err := s.Repo.DeleteBatch(ctx, batchID); err != nil {
		return err
	}
	s.clearProgress(ctx, batchID)
	telemetry.Info("import.batch_deleted", s.fields(ctx, batchID, nil))
	return nil
}

func (s *Service) isRunning(ctx context.Context, batchID string) bool {
	if s.Progress == nil {
		return false
	}
	p, ok, err := s.Progress.Get(ctx, batchID)
	if err != nil || !ok || !p.Running {
		return false
	}
	window := s.RunningWindow
	if window <= 0 {
		window = defaultRunningWindow
	}
	return s.now().Sub(p.UpdatedAt) < window
}

func (s *Service) updateProgress(ctx context.Context, p progress.Progress) {
	if s.Progress == nil {
		return
	}
	p.UpdatedAt = s.now()
	if err := s.Progress.Update(ctx, p); err != nil {
		telemetry.Warn("import.progress_update_failed", s.fields(ctx, p.BatchID, map[string]any{"error": err.Error()}))
	}
}

func (s *Service) clearProgress(ctx context.Context, batchID string) {
	if s.Progress == nil {
		return
	}
	if err := s.Progress.Clear(ctx, batchID); err != nil {
		telemetry.Warn("import.progress_clear_failed", s.fields(ctx, batchID, map[string]any{"error": err.Error()}))
	}
}

func (s *Service) fields(ctx context.Context, batchID string, extra map[string]any) map[string]any {
	fields := map[string]any{"batch_id": batchID}
	if requestID := requestIDFromContext(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func lineKey(batchID, lineID, ext string) string {
	return path.Join("imports", batchID, lineID+ext)
}

func isPDF(fileName string) bool {
	return strings.EqualFold(path.Ext(strings.TrimSpace(fileName)), ".pdf")
}
