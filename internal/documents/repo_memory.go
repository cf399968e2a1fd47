package documents

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]Document // batchId -> documents
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string][]Document),
	}
}

// Create appends a document to its batch.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[doc.BatchID] = append(r.data[doc.BatchID], doc)
	return nil
}

// ListByBatch returns a copy of the batch's documents, oldest first.
func (r *MemoryRepo) ListByBatch(ctx context.Context, batchID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	docs := make([]Document, len(r.data[batchID]))
	copy(docs, r.data[batchID])
	r.mu.RUnlock()

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// CountByBatch returns the number of documents attached to a batch.
func (r *MemoryRepo) CountByBatch(ctx context.Context, batchID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data[batchID]), nil
}

// KeyExists reports whether any batch references the storage key.
func (r *MemoryRepo) KeyExists(ctx context.Context, storageKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, docs := range r.data {
		for _, doc := range docs {
			if doc.StorageKey == storageKey {
				return true, nil
			}
		}
	}
	return false, nil
}

// DeleteByBatch drops every document of a batch.
func (r *MemoryRepo) DeleteByBatch(ctx context.Context, batchID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.data[batchID])
	delete(r.data, batchID)
	return n, nil
}

var _ Repo = (*MemoryRepo)(nil)
