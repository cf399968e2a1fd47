package letters

import "fmt"

// ComputeState derives the batch state. Letters exist only after a save, so
// any letter means done. Once the import run completed, the batch is ready
// when every line is ok and open otherwise. Lines without completion mean a
// run is in progress or was interrupted.
func ComputeState(s Snapshot) State {
	if s.LetterCount > 0 {
		return StateDone
	}
	if s.ImportCompleted {
		for _, status := range s.LineStatuses {
			if status != LineStatusOK {
				return StateOpen
			}
		}
		return StateReady
	}
	if len(s.LineStatuses) > 0 {
		return StatePending
	}
	return StateDraft
}

// FileCount returns documents while drafting, lines while analyzing or
// reviewing, and letters once done.
func FileCount(state State, s Snapshot) int {
	switch state {
	case StateDraft:
		return s.DocumentCount
	case StateDone:
		return s.LetterCount
	default:
		return len(s.LineStatuses)
	}
}

// GuardAddDocuments rejects uploads once a run has completed or the batch is done.
func GuardAddDocuments(b Batch) error {
	if b.ImportCompleted || b.State == StateDone {
		return fmt.Errorf("%w: cannot add documents to a %s batch", ErrInvalidTransition, b.State)
	}
	return nil
}

// GuardStartImport allows a run on batches that have not completed one.
func GuardStartImport(b Batch) error {
	if b.State == StateDone || b.ImportCompleted {
		return fmt.Errorf("%w: import already completed", ErrInvalidTransition)
	}
	return nil
}

// GuardSave allows saving only ready batches that hold at least one line.
func GuardSave(state State, lineCount int) error {
	if state != StateReady {
		return ErrNotReady
	}
	if lineCount == 0 {
		return ErrNothingToSave
	}
	return nil
}

// GuardUpdateLine allows review edits on open and ready batches.
func GuardUpdateLine(state State) error {
	if state != StateOpen && state != StateReady {
		return fmt.Errorf("%w: lines can only be edited on open or ready batches", ErrInvalidTransition)
	}
	return nil
}

// GuardDelete allows deleting batches that are not being analyzed and have not been saved.
func GuardDelete(state State) error {
	switch state {
	case StateDraft, StateOpen, StateReady:
		return nil
	default:
		return fmt.Errorf("%w: cannot delete a %s batch", ErrInvalidTransition, state)
	}
}
