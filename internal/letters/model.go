package letters

import (
	"time"

	"letters-backend/internal/progress"
)

// State is the derived lifecycle state of an import batch.
type State string

const (
	StateDraft   State = "draft"
	StatePending State = "pending"
	StateOpen    State = "open"
	StateReady   State = "ready"
	StateDone    State = "done"
)

// Label is the operator-facing name of a state.
func (s State) Label() string {
	switch s {
	case StateDraft:
		return "Draft"
	case StatePending:
		return "Analyzing"
	case StateOpen:
		return "Open"
	case StateReady:
		return "Ready"
	case StateDone:
		return "Done"
	default:
		return string(s)
	}
}

// LineStatusOK marks an import line that can be promoted to a letter.
const LineStatusOK = "ok"

// Batch is one import of scanned letters.
type Batch struct {
	ID              string
	ConfigID        string
	TemplateID      string
	State           State
	ImportCompleted bool
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Line is a provisional scan result awaiting review and save.
type Line struct {
	ID          string
	BatchID     string
	PartnerID   *int64
	ChildID     *int64
	PartnerCode string
	ChildCode   string
	TemplateID  string
	Status      string
	FileName    string
	DocumentKey string
	PreviewKey  string
	CreatedAt   time.Time
}

// Letter is the permanent correspondence record created when a batch is saved.
type Letter struct {
	ID          string
	BatchID     string
	PartnerID   *int64
	ChildID     *int64
	TemplateID  string
	FileName    string
	DocumentKey string
	PreviewKey  string
	CreatedAt   time.Time
}

// Snapshot holds the facts batch state is derived from.
type Snapshot struct {
	LineStatuses    []string
	DocumentCount   int
	LetterCount     int
	ImportCompleted bool
}

// LineUpdate carries operator corrections made during review. Nil fields are
// left unchanged; ClearPartner/ClearChild reset the reference to null.
type LineUpdate struct {
	PartnerID    *int64
	ChildID      *int64
	ClearPartner bool
	ClearChild   bool
	Status       *string
}

// View is a batch together with its counters and run progress.
type View struct {
	Batch
	DocumentCount int
	LineCount     int
	LetterCount   int
	// FileCount is the "number of files" shown to operators; what it counts
	// depends on the state.
	FileCount int
	Progress  *progress.Progress
}
