//go:build !windows

package monitor

import (
	"os"
	"syscall"
)

// termSignal returns the signal used to request graceful capture shutdown.
func termSignal() os.Signal {
	return syscall.SIGTERM
}
