package monitor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cgale/vigil/internal/logger"
)

// Capture owns the external ffmpeg process that dumps one frame per sampling
// interval into a session's output directory. Its lifetime is tied 1:1 to
// the loop that started it.
type Capture struct {
	cmd      *exec.Cmd
	done     chan struct{}
	grace    time.Duration
	stopOnce sync.Once
}

// FramePath returns the path of the frame file at the given 1-based index
func FramePath(outputDir string, index int) string {
	return filepath.Join(outputDir, fmt.Sprintf("frame_%04d.jpg", index))
}

// StartCapture launches ffmpeg writing sequentially numbered JPEG frames
// into outputDir. Stale frames from a previous run are removed first, so
// frame 1 of this run can never be old data.
func StartCapture(streamURL, outputDir string, interval, grace time.Duration, ffmpegPath string) (*Capture, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := cleanStaleFrames(outputDir); err != nil {
		return nil, err
	}

	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	seconds := int(interval.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	cmd := exec.Command(ffmpegPath,
		"-y",
		"-i", streamURL,
		"-vf", fmt.Sprintf("fps=1/%d", seconds),
		"-qscale:v", "2",
		filepath.Join(outputDir, "frame_%04d.jpg"),
	)
	cmd.Stdout = nil
	cmd.Stderr = nil

	return launch(cmd, grace)
}

// launch starts the process and begins reaping it. Split from StartCapture
// so tests can run a stand-in command.
func launch(cmd *exec.Cmd, grace time.Duration) (*Capture, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture process: %w", err)
	}

	c := &Capture{
		cmd:   cmd,
		done:  make(chan struct{}),
		grace: grace,
	}

	go func() {
		_ = cmd.Wait()
		close(c.done)
	}()

	logger.Debug().
		Int("pid", cmd.Process.Pid).
		Msg("Capture process started")

	return c, nil
}

// Alive reports whether the capture process is still running
func (c *Capture) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Stop requests graceful termination, waits up to the grace period, then
// force-kills. Idempotent and safe on an already-exited process.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		if !c.Alive() {
			return
		}

		_ = c.cmd.Process.Signal(termSignal())

		select {
		case <-c.done:
		case <-time.After(c.grace):
			logger.Debug().
				Int("pid", c.cmd.Process.Pid).
				Msg("Capture process did not exit in time, killing")
			_ = c.cmd.Process.Kill()
			<-c.done
		}
	})
}

// cleanStaleFrames deletes frame files left over from a previous run
func cleanStaleFrames(outputDir string) error {
	stale, err := filepath.Glob(filepath.Join(outputDir, "frame_*.jpg"))
	if err != nil {
		return fmt.Errorf("failed to glob stale frames: %w", err)
	}
	for _, f := range stale {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale frame %s: %w", f, err)
		}
	}
	return nil
}
