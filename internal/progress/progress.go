package progress

import (
	"context"
	"time"
)

// Progress describes how far an import run has advanced through its documents.
type Progress struct {
	BatchID   string    `json:"batchId"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	FileName  string    `json:"fileName,omitempty"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Running   bool      `json:"running"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker stores the latest progress per batch. Progress is advisory: losing
// it never affects batch state, which is derived from persisted lines.
type Tracker interface {
	Update(ctx context.Context, p Progress) error
	Get(ctx context.Context, batchID string) (Progress, bool, error)
	Clear(ctx context.Context, batchID string) error
}
