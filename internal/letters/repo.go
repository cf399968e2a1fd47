package letters

import "context"

// BuildLetters turns the lines of a ready batch into letters. It runs while the
// repo holds the batch lock.
type BuildLetters func(lines []Line) []Letter

// Repo persists batches, their lines and letters. Every mutating call commits
// before returning and refreshes the stored batch state from ComputeState.
type Repo interface {
	// CreateBatch returns ErrImportAlreadyOpen when another unfinished batch
	// uses the same config.
	CreateBatch(ctx context.Context, batch Batch) error
	GetBatch(ctx context.Context, batchID string) (Batch, error)
	ListBatches(ctx context.Context, limit, offset int) ([]Batch, error)
	Snapshot(ctx context.Context, batchID string) (Snapshot, error)
	// AppendLine is the per-document checkpoint of an import run.
	AppendLine(ctx context.Context, line Line) error
	ListLines(ctx context.Context, batchID string) ([]Line, error)
	GetLine(ctx context.Context, batchID, lineID string) (Line, error)
	UpdateLine(ctx context.Context, batchID, lineID string, update LineUpdate) (Line, error)
	MarkImportCompleted(ctx context.Context, batchID string) error
	// PromoteLines checks GuardSave, inserts the built letters and removes the
	// lines in one transaction.
	PromoteLines(ctx context.Context, batchID string, build BuildLetters) ([]Letter, error)
	ListLetters(ctx context.Context, batchID string) ([]Letter, error)
	DeleteBatch(ctx context.Context, batchID string) error
}

func applyLineUpdate(line Line, update LineUpdate) Line {
	if update.ClearPartner {
		line.PartnerID = nil
	} else if update.PartnerID != nil {
		id := *update.PartnerID
		line.PartnerID = &id
	}
	if update.ClearChild {
		line.ChildID = nil
	} else if update.ChildID != nil {
		id := *update.ChildID
		line.ChildID = &id
	}
	if update.Status != nil {
		line.Status = *update.Status
	}
	return line
}
