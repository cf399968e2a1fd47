package documents

import "context"

// Repo defines persistence operations for batch source documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	// ListByBatch returns documents in upload order.
	ListByBatch(ctx context.Context, batchID string) ([]Document, error)
	CountByBatch(ctx context.Context, batchID string) (int, error)
	// KeyExists reports whether any batch already references the storage key.
	KeyExists(ctx context.Context, storageKey string) (bool, error)
	DeleteByBatch(ctx context.Context, batchID string) (int, error)
}
