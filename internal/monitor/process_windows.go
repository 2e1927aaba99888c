//go:build windows

package monitor

import "os"

// termSignal returns the signal used to request capture shutdown.
// On Windows, os.Kill is the only reliable signal.
func termSignal() os.Signal {
	return os.Kill
}
