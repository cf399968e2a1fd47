package letters

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"letters-backend/internal/documents"
	"letters-backend/internal/shared/storage/object"
)

// ErrDocumentMissing marks a document whose stored bytes are gone. The
// sequence continues past it.
var ErrDocumentMissing = errors.New("document bytes missing from storage")

// DocumentSource lists and reads the scans attached to a batch.
type DocumentSource interface {
	List(ctx context.Context, batchID string) ([]documents.Document, error)
	Read(ctx context.Context, doc documents.Document) ([]byte, error)
}

// Source is one document produced by the Enumerator.
type Source struct {
	Index      int // 1-based
	Total      int
	Name       string
	Data       []byte
	DocumentID string
}

// Enumerator walks a batch's documents in upload order, holding one
// document's bytes at a time.
type Enumerator struct {
	Documents DocumentSource
	BatchID   string
}

// All yields each distinct document once. A document whose object no longer
// exists is yielded with ErrDocumentMissing and the sequence goes on; any other
// listing or read failure is yielded as an error and ends the sequence.
func (e Enumerator) All(ctx context.Context) iter.Seq2[Source, error] {
	return func(yield func(Source, error) bool) {
		docs, err := e.Documents.List(ctx, e.BatchID)
		if err != nil {
			yield(Source{}, fmt.Errorf("list documents: %w", err))
			return
		}

		seen := make(map[string]struct{}, len(docs))
		unique := docs[:0:0]
		for _, doc := range docs {
			if _, ok := seen[doc.ID]; ok {
				continue
			}
			seen[doc.ID] = struct{}{}
			unique = append(unique, doc)
		}

		for i, doc := range unique {
			if err := ctx.Err(); err != nil {
				yield(Source{}, err)
				return
			}
			src := Source{
				Index:      i + 1,
				Total:      len(unique),
				Name:       doc.FileName,
				DocumentID: doc.ID,
			}
			data, err := e.Documents.Read(ctx, doc)
			if errors.Is(err, object.ErrNotFound) {
				if !yield(src, fmt.Errorf("%w: %v", ErrDocumentMissing, err)) {
					return
				}
				continue
			}
			if err != nil {
				yield(Source{}, err)
				return
			}
			src.Data = data
			if !yield(src, nil) {
				return
			}
		}
	}
}
