package monitor

import (
	"os"
	"time"
)

// WaitResult is the outcome of waiting for a frame file to appear
type WaitResult int

const (
	// FrameReady means the frame file exists and can be read
	FrameReady WaitResult = iota
	// WaitTimedOut means the deadline passed without the frame appearing
	WaitTimedOut
	// CaptureExited means the capture process died before writing the frame
	CaptureExited
)

// WaitForFrame polls for the frame file at path until it appears, the
// capture process exits, or the deadline passes. The capture process is the
// sole authority on frame cadence; both abort conditions end the wait
// because no further frames can be assumed.
func WaitForFrame(path string, timeout, poll time.Duration, alive func() bool) WaitResult {
	deadline := time.Now().Add(timeout)

	for {
		if _, err := os.Stat(path); err == nil {
			return FrameReady
		}
		if !alive() {
			return CaptureExited
		}
		if time.Now().After(deadline) {
			return WaitTimedOut
		}
		time.Sleep(poll)
	}
}
