package progress

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker keeps progress in process memory.
type MemoryTracker struct {
	entries sync.Map // batchId -> Progress
	now     func() time.Time
}

// NewMemoryTracker constructs a MemoryTracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{now: time.Now}
}

func (m *MemoryTracker) Update(ctx context.Context, p Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now().UTC()
	}
	m.entries.Store(p.BatchID, p)
	return nil
}

func (m *MemoryTracker) Get(ctx context.Context, batchID string) (Progress, bool, error) {
	if err := ctx.Err(); err != nil {
		return Progress{}, false, err
	}
	v, ok := m.entries.Load(batchID)
	if !ok {
		return Progress{}, false, nil
	}
	return v.(Progress), true, nil
}

func (m *MemoryTracker) Clear(ctx context.Context, batchID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries.Delete(batchID)
	return nil
}

var _ Tracker = (*MemoryTracker)(nil)
