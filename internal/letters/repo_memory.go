package letters

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryBatch struct {
	batch   Batch
	lines   []Line
	letters []Letter
}

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu      sync.RWMutex
	batches map[string]*memoryBatch
	now     func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		batches: make(map[string]*memoryBatch),
		now:     time.Now,
	}
}

func (m *memoryBatch) snapshot() Snapshot {
	statuses := make([]string, len(m.lines))
	for i, l := range m.lines {
		statuses[i] = l.Status
	}
	return Snapshot{
		LineStatuses:    statuses,
		LetterCount:     len(m.letters),
		ImportCompleted: m.batch.ImportCompleted,
	}
}

func (r *MemoryRepo) refresh(m *memoryBatch) {
	m.batch.State = ComputeState(m.snapshot())
	m.batch.UpdatedAt = r.now().UTC()
}

// CreateBatch stores a new batch.
func (r *MemoryRepo) CreateBatch(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[batch.ID]; ok {
		return ErrInvalidInput
	}
	if batch.ConfigID != "" {
		for _, existing := range r.batches {
			if existing.batch.ConfigID == batch.ConfigID && existing.batch.State != StateDone {
				return ErrImportAlreadyOpen
			}
		}
	}
	batch.State = StateDraft
	r.batches[batch.ID] = &memoryBatch{batch: batch}
	return nil
}

// GetBatch returns a batch by ID.
func (r *MemoryRepo) GetBatch(ctx context.Context, batchID string) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.batches[batchID]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return m.batch, nil
}

// ListBatches returns batches newest first.
func (r *MemoryRepo) ListBatches(ctx context.Context, limit, offset int) ([]Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Batch, 0, len(r.batches))
	for _, m := range r.batches {
		out = append(out, m.batch)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []Batch{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Snapshot returns the facts the batch state is derived from.
func (r *MemoryRepo) Snapshot(ctx context.Context, batchID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.batches[batchID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return m.snapshot(), nil
}

// AppendLine adds a line to its batch.
func (r *MemoryRepo) AppendLine(ctx context.Context, line Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.batches[line.BatchID]
	if !ok {
		return ErrNotFound
	}
	m.lines = append(m.lines, line)
	r.refresh(m)
	return nil
}

// ListLines returns the batch's lines in insertion order.
func (r *MemoryRepo) ListLines(ctx context.Context, batchID string) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Line, len(m.lines))
	copy(out, m.lines)
	return out, nil
}

// GetLine returns one line of a batch.
func (r *MemoryRepo) GetLine(ctx context.Context, batchID, lineID string) (Line, error) {
	if err := ctx.Err(); err != nil {
		return Line{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.batches[batchID]
	if !ok {
		return Line{}, ErrNotFound
	}
	for _, l := range m.lines {
		if l.ID == lineID {
			return l, nil
		}
	}
	return Line{}, ErrNotFound
}

// UpdateLine applies review corrections to a line.
func (r *MemoryRepo) UpdateLine(ctx context.Context, batchID, lineID string, update LineUpdate) (Line, error) {
	if err := ctx.Err(); err != nil {
		return Line{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.batches[batchID]
	if !ok {
		return Line{}, ErrNotFound
	}
	for i, l := range m.lines {
		if l.ID != lineID {
			continue
		}
		m.lines[i] = applyLineUpdate(l, update)
		r.refresh(m)
		return m.lines[i], nil
	}
	return Line{}, ErrNotFound
}

// MarkImportCompleted flags the end of a successful run.
func (r *MemoryRepo) MarkImportCompleted(ctx context.Context, batchID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.batches[batchID]
	if !ok {
		return ErrNotFound
	}
	now := r.now().UTC()
	m.batch.ImportCompleted = true
	m.batch.CompletedAt = &now
	r.refresh(m)
	return nil
}

// PromoteLines replaces a ready batch's lines with letters.
func (r *MemoryRepo) PromoteLines(ctx context.Context, batchID string, build BuildLetters) ([]Letter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := GuardSave(ComputeState(m.snapshot()), len(m.lines)); err != nil {
		return nil, err
	}
	lines := make([]Line, len(m.lines))
	copy(lines, m.lines)
	created := build(lines)
	m.letters = append(m.letters, created...)
	m.lines = nil
	r.refresh(m)
	out := make([]Letter, len(created))
	copy(out, created)
	return out, nil
}

// ListLetters returns the letters created from a batch.
func (r *MemoryRepo) ListLetters(ctx context.Context, batchID string) ([]Letter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Letter, len(m.letters))
	copy(out, m.letters)
	return out, nil
}

// DeleteBatch removes a batch and its lines.
func (r *MemoryRepo) DeleteBatch(ctx context.Context, batchID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[batchID]; !ok {
		return ErrNotFound
	}
	delete(r.batches, batchID)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
