package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"letters-backend/internal/shared/storage/object"
	"letters-backend/internal/shared/telemetry"
	"letters-backend/internal/shared/util"
)

// Service stores scans in object storage and tracks them per batch.
type Service struct {
	Store    object.ObjectStore
	Repo     Repo
	Provider string
	Now      func() time.Time
}

// Upload saves the file under the batch namespace and records the document.
func (s *Service) Upload(ctx context.Context, batchID, fileName string, r io.Reader) (Document, error) {
	if strings.TrimSpace(batchID) == "" || strings.TrimSpace(fileName) == "" || r == nil {
		return Document{}, ErrInvalidInput
	}

	hasher := sha256.New()
	storageKey, size, mimeType, err := s.Store.Save(ctx, batchID, fileName, io.TeeReader(r, hasher))
	if err != nil {
		return Document{}, fmt.Errorf("store document: %w", err)
	}

	doc := Document{
		ID:              uuid.NewString(),
		BatchID:         batchID,
		FileName:        fileName,
		MimeType:        mimeType,
		SizeBytes:       size,
		StorageProvider: s.provider(),
		StorageKey:      storageKey,
		Checksum:        hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt:       s.now(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Register records a document whose bytes were uploaded directly to object
// storage through a presigned URL. The object must exist; its stored size wins
// over the declared one.
func (s *Service) Register(ctx context.Context, batchID, storageKey, fileName, contentType string, sizeBytes int64) (Document, error) {
	if strings.TrimSpace(batchID) == "" || strings.TrimSpace(storageKey) == "" || strings.TrimSpace(fileName) == "" {
		return Document{}, ErrInvalidInput
	}
	if sizeBytes <= 0 {
		return Document{}, fmt.Errorf("%w: sizeBytes must be positive", ErrInvalidInput)
	}
	exists, err := s.Repo.KeyExists(ctx, storageKey)
	if err != nil {
		return Document{}, err
	}
	if exists {
		return Document{}, ErrKeyInUse
	}
	size, err := s.Store.Stat(ctx, storageKey)
	if errors.Is(err, object.ErrNotFound) {
		return Document{}, fmt.Errorf("%w: %s was not uploaded", ErrInvalidInput, storageKey)
	}
	if err != nil {
		return Document{}, fmt.Errorf("stat document: %w", err)
	}
	doc := Document{
		ID:              uuid.NewString(),
		BatchID:         batchID,
		FileName:        fileName,
		MimeType:        contentType,
		SizeBytes:       size,
		StorageProvider: s.provider(),
		StorageKey:      storageKey,
		CreatedAt:       s.now(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// List returns a batch's documents in upload order.
func (s *Service) List(ctx context.Context, batchID string) ([]Document, error) {
	return s.Repo.ListByBatch(ctx, batchID)
}

// Count returns how many documents are attached to a batch.
func (s *Service) Count(ctx context.Context, batchID string) (int, error) {
	return s.Repo.CountByBatch(ctx, batchID)
}

// Read loads a document's bytes from object storage. Documents uploaded through
// the API carry a checksum which the bytes must match.
func (s *Service) Read(ctx context.Context, doc Document) ([]byte, error) {
	data, err := object.ReadAll(ctx, s.Store, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", doc.ID, err)
	}
	if doc.Checksum != "" && util.Checksum(data) != doc.Checksum {
		return nil, fmt.Errorf("read document %s: %w", doc.ID, ErrChecksumMismatch)
	}
	return data, nil
}

// Purge deletes the blobs and rows of every document attached to a batch.
// Blob removal failures are logged; the rows are still removed so the batch
// does not re-import stale scans.
func (s *Service) Purge(ctx context.Context, batchID string) (int, error) {
	docs, err := s.Repo.ListByBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		if err := s.Store.Delete(ctx, doc.StorageKey); err != nil {
			telemetry.Warn("documents.blob_delete_failed", map[string]any{
				"batch_id":    batchID,
				"document_id": doc.ID,
				"storage_key": doc.StorageKey,
				"error":       err.Error(),
			})
		}
	}
	return s.Repo.DeleteByBatch(ctx, batchID)
}

func (s *Service) provider() string {
	if s.Provider == "" {
		return "local"
	}
	return s.Provider
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
