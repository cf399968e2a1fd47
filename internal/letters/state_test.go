package letters

import (
	"errors"
	"testing"
)

func TestComputeState(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want State
	}{
		{"empty batch", Snapshot{}, StateDraft},
		{"documents only", Snapshot{DocumentCount: 3}, StateDraft},
		{"lines while running", Snapshot{LineStatuses: []string{"ok"}, DocumentCount: 2}, StatePending},
		{"completed all ok", Snapshot{LineStatuses: []string{"ok", "ok"}, ImportCompleted: true}, StateReady},
		{"completed with error line", Snapshot{LineStatuses: []string{"ok", "no_partner"}, ImportCompleted: true}, StateOpen},
		{"completed without lines", Snapshot{ImportCompleted: true}, StateReady},
		{"letters exist", Snapshot{LetterCount: 2, ImportCompleted: true}, StateDone},
		{"letters win over lines", Snapshot{LetterCount: 1, LineStatuses: []string{"bad"}}, StateDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeState(tc.snap); got != tc.want {
				t.Fatalf("ComputeState=%s want %s", got, tc.want)
			}
		})
	}
}

func TestFileCountFollowsState(t *testing.T) {
	snap := Snapshot{LineStatuses: []string{"ok", "ok"}, DocumentCount: 5, LetterCount: 7}
	if got := FileCount(StateDraft, snap); got != 5 {
		t.Fatalf("draft counts documents, got %d", got)
	}
	for _, s := range []State{StatePending, StateOpen, StateReady} {
		if got := FileCount(s, snap); got != 2 {
			t.Fatalf("%s counts lines, got %d", s, got)
		}
	}
	if got := FileCount(StateDone, snap); got != 7 {
		t.Fatalf("done counts letters, got %d", got)
	}
}

func TestPendingLabel(t *testing.T) {
	if StatePending.Label() != "Analyzing" {
		t.Fatalf("unexpected label %q", StatePending.Label())
	}
}

func TestGuards(t *testing.T) {
	if err := GuardAddDocuments(Batch{State: StateDraft}); err != nil {
		t.Fatalf("draft accepts documents: %v", err)
	}
	if err := GuardAddDocuments(Batch{State: StateReady, ImportCompleted: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed batch must reject documents, got %v", err)
	}
	if err := GuardStartImport(Batch{State: StatePending}); err != nil {
		t.Fatalf("interrupted run can restart: %v", err)
	}
	if err := GuardStartImport(Batch{State: StateOpen, ImportCompleted: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed batch must not re-import, got %v", err)
	}
	if err := GuardSave(StateOpen, 2); !errors.Is(err, ErrNotReady) {
		t.Fatalf("open batch is not ready, got %v", err)
	}
	if err := GuardSave(StateReady, 0); !errors.Is(err, ErrNothingToSave) {
		t.Fatalf("empty ready batch, got %v", err)
	}
	if err := GuardSave(StateReady, 1); err != nil {
		t.Fatalf("ready batch saves: %v", err)
	}
	if err := GuardUpdateLine(StatePending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending lines are not editable, got %v", err)
	}
	if err := GuardDelete(StateDone); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("done batch is not deletable, got %v", err)
	}
	if err := GuardDelete(StatePending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending batch is not deletable, got %v", err)
	}
}
