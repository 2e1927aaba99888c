package monitor

import "github.com/cgale/vigil/internal/inference"

// The conversation never exceeds the system turn plus the two most recent
// frames. This bounds per-request payload size and cost independent of how
// long a session runs.
const maxUserTurns = 2

const (
	firstFramePrompt = "Here is the first frame. Watch subsequent frames and tell me when the event happens."
	nextFramePrompt  = "Here is the next frame in the sequence. Has the event happened yet compared to previous frames?"
)

// Window maintains the bounded multi-turn conversation sent to the
// inference service. It is mutated only by the owning loop.
type Window struct {
	system    string
	turns     []inference.Turn
	firstSent bool
}

// NewWindow builds a conversation window for the given detection goal
func NewWindow(goal string) *Window {
	return &Window{
		system: "You are a CCTV image event detection assistant. " +
			"You analyze a sequence of frames from a fixed camera and detect when a specified event happens. " +
			"Goal: " + goal,
	}
}

// System returns the fixed system instruction
func (w *Window) System() string {
	return w.system
}

// AppendFrame adds a user turn carrying the encoded frame, prunes the
// history to the two most recent turns, and returns an immutable snapshot
// to send.
func (w *Window) AppendFrame(imageB64 string) []inference.Turn {
	text := nextFramePrompt
	if !w.firstSent {
		text = firstFramePrompt
		w.firstSent = true
	}

	w.turns = append(w.turns, inference.Turn{
		Text:     text,
		ImageB64: imageB64,
	})

	if len(w.turns) > maxUserTurns {
		w.turns = w.turns[len(w.turns)-maxUserTurns:]
	}

	snapshot := make([]inference.Turn, len(w.turns))
	copy(snapshot, w.turns)
	return snapshot
}

// Len returns the total turn count, counting the system turn
func (w *Window) Len() int {
	return len(w.turns) + 1
}
