package monitor

import (
	"strings"
	"testing"
)

func TestWindowFirstFramePrompt(t *testing.T) {
	w := NewWindow("a dog enters the yard")

	turns := w.AppendFrame("AAAA")
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].Text != firstFramePrompt {
		t.Errorf("got first-frame text %q, want %q", turns[0].Text, firstFramePrompt)
	}

	turns = w.AppendFrame("BBBB")
	if turns[len(turns)-1].Text != nextFramePrompt {
		t.Errorf("got second-frame text %q, want %q", turns[len(turns)-1].Text, nextFramePrompt)
	}
}

func TestWindowSystemCarriesGoal(t *testing.T) {
	w := NewWindow("a truck stops at the gate")

	if !strings.Contains(w.System(), "a truck stops at the gate") {
		t.Errorf("system turn does not carry the goal: %q", w.System())
	}

	// The system turn survives pruning
	for i := 0; i < 10; i++ {
		w.AppendFrame("XXXX")
	}
	if !strings.Contains(w.System(), "a truck stops at the gate") {
		t.Error("system turn changed after pruning")
	}
}

func TestWindowPrunesToLastTwoFrames(t *testing.T) {
	w := NewWindow("goal")

	frames := []string{"frame1", "frame2", "frame3", "frame4"}

	var snapshot []string
	for _, f := range frames {
		snap := w.AppendFrame(f)
		snapshot = snapshot[:0]
		for _, turn := range snap {
			snapshot = append(snapshot, turn.ImageB64)
		}
	}

	// After frames 1..4: system + the two most recent user turns
	if w.Len() != 3 {
		t.Fatalf("got %d turns, want 3", w.Len())
	}
	if len(snapshot) != 2 {
		t.Fatalf("got %d user turns, want 2", len(snapshot))
	}
	if snapshot[0] != "frame3" || snapshot[1] != "frame4" {
		t.Errorf("got frames %v, want [frame3 frame4]", snapshot)
	}
}

func TestWindowSnapshotIsImmutable(t *testing.T) {
	w := NewWindow("goal")

	first := w.AppendFrame("frame1")
	w.AppendFrame("frame2")

	if first[0].ImageB64 != "frame1" {
		t.Error("earlier snapshot mutated by later append")
	}

	first[0].Text = "tampered"
	second := w.AppendFrame("frame3")
	for _, turn := range second {
		if turn.Text == "tampered" {
			t.Error("caller mutation leaked into window state")
		}
	}
}
