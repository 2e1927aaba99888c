// Package monitor implements the frame-sampling monitoring loop: it
// synchronizes an external ffmpeg frame producer with a bounded-context,
// rate-limit-tolerant inference consumer and drives each session's state
// machine to a terminal status.
package monitor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cgale/vigil/internal/config"
	"github.com/cgale/vigil/internal/inference"
	"github.com/cgale/vigil/internal/logger"
	"github.com/cgale/vigil/internal/store"
)

// Options bundles the loop's timing knobs
type Options struct {
	FrameRoot       string
	FrameInterval   time.Duration
	FrameTimeout    time.Duration
	PollInterval    time.Duration
	ThrottleBackoff time.Duration
	StopGrace       time.Duration
	FFmpegPath      string
}

// OptionsFromConfig builds loop options from monitor settings
func OptionsFromConfig(cfg config.MonitorSettings) Options {
	frameRoot := cfg.FrameRoot
	if frameRoot == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			frameRoot = filepath.Join(homeDir, ".vigil", "frames")
		} else {
			frameRoot = "frames"
		}
	}

	return Options{
		FrameRoot:       frameRoot,
		FrameInterval:   cfg.Interval(),
		FrameTimeout:    cfg.Timeout(),
		PollInterval:    cfg.Poll(),
		ThrottleBackoff: cfg.Backoff(),
		StopGrace:       cfg.Grace(),
		FFmpegPath:      cfg.FFmpegPath,
	}
}

// captureHandle is the part of Capture the loop depends on. Tests
// substitute their own frame producers through it.
type captureHandle interface {
	Alive() bool
	Stop()
}

// captureStarter launches the frame producer for one run
type captureStarter func(streamURL, outputDir string) (captureHandle, error)

// Runner executes monitoring loops against shared collaborators. All
// dependencies are injected at construction; nothing is process-global.
type Runner struct {
	store        store.SessionStore
	resolver     Resolver
	client       inference.Client
	opts         Options
	startCapture captureStarter
}

// NewRunner creates a runner wired to the real ffmpeg capture process
func NewRunner(st store.SessionStore, resolver Resolver, client inference.Client, opts Options) *Runner {
	r := &Runner{
		store:    st,
		resolver: resolver,
		client:   client,
		opts:     opts,
	}
	r.startCapture = func(streamURL, outputDir string) (captureHandle, error) {
		return StartCapture(streamURL, outputDir, opts.FrameInterval, opts.StopGrace, opts.FFmpegPath)
	}
	return r
}

// Run drives one session from pending to a terminal state. Any failure that
// escapes an iteration lands the session in the error state with its
// description recorded; cleanup runs on every exit path.
func (r *Runner) Run(sessionID string) {
	l := &loopRun{r: r, sessionID: sessionID}
	defer l.cleanup()

	if err := l.execute(); err != nil {
		logger.Error().
			Str("session", sessionID).
			Err(err).
			Msg("Monitoring failed")
		if serr := r.store.MarkError(sessionID, err.Error()); serr != nil {
			logger.Error().Str("session", sessionID).Err(serr).Msg("Failed to record error state")
		}
		l.log(nil, fmt.Sprintf("Monitoring failed: %v", err), false)
	}
}

// loopRun is the state of one loop execution
type loopRun struct {
	r         *Runner
	sessionID string
	capture   captureHandle
}

func (l *loopRun) execute() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected fault: %v", p)
		}
	}()

	sess, err := l.r.store.GetSession(l.sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	outputDir := filepath.Join(l.r.opts.FrameRoot, "session_"+sess.ID)
	if err := l.r.store.MarkRunning(sess.ID, outputDir); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	l.log(nil, "Fetching live stream URL...", false)

	streamURL, err := l.r.resolver.Resolve(context.Background(), sess.SourceURL)
	if err != nil {
		return fmt.Errorf("resolve stream: %w", err)
	}
	if err := l.r.store.SetStreamURL(sess.ID, streamURL); err != nil {
		return fmt.Errorf("record stream url: %w", err)
	}
	l.log(nil, "Stream URL fetched.", false)

	l.log(nil, "Launching frame capture...", false)
	capture, err := l.r.startCapture(streamURL, outputDir)
	if err != nil {
		return fmt.Errorf("start frame capture: %w", err)
	}
	l.capture = capture

	l.log(nil, "Monitoring started.", false)

	window := NewWindow(sess.Goal)

	// Frames are processed strictly in increasing order, one at a time
	for frame := 1; ; frame++ {
		framePath := FramePath(outputDir, frame)

		switch WaitForFrame(framePath, l.r.opts.FrameTimeout, l.r.opts.PollInterval, capture.Alive) {
		case CaptureExited:
			l.log(&frame, "Frame capture ended before creating the next frame.", false)
			return l.finishWithoutEvent()
		case WaitTimedOut:
			l.log(&frame, "Timed out waiting for the next frame.", false)
			return l.finishWithoutEvent()
		}

		l.log(&frame, fmt.Sprintf("Processing frame %d...", frame), false)

		encoded, err := encodeFrame(framePath)
		if err != nil {
			return fmt.Errorf("read frame %d: %w", frame, err)
		}

		turns := window.AppendFrame(encoded)

		l.log(&frame, fmt.Sprintf("Analyzing frame %d...", frame), false)

		reply, err := l.classify(window.System(), turns, frame)
		if err != nil {
			return fmt.Errorf("classify frame %d: %w", frame, err)
		}

		l.log(&frame, "Model: "+reply, false)

		if EventDetected(reply) {
			l.log(&frame, "Event detected!", true)
			if err := l.r.store.MarkCompleted(sess.ID, true); err != nil {
				return fmt.Errorf("mark completed: %w", err)
			}
			return nil
		}
	}
}

// finishWithoutEvent ends a run whose frame source was exhausted. This is a
// normal completion, not an error.
func (l *loopRun) finishWithoutEvent() error {
	if err := l.r.store.MarkCompleted(l.sessionID, false); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	l.log(nil, "Monitoring completed without detecting the event.", false)
	return nil
}

// classify sends one inference request for the frame, retrying indefinitely
// on throttling with a fixed backoff. Throttling is the only retried
// failure mode.
func (l *loopRun) classify(system string, turns []inference.Turn, frame int) (string, error) {
	for {
		reply, err := l.r.client.Classify(context.Background(), system, turns)
		if err == nil {
			return strings.TrimSpace(reply), nil
		}
		if !errors.Is(err, inference.ErrThrottled) {
			return "", err
		}

		l.log(&frame, "Rate limit hit. Retrying shortly...", false)
		time.Sleep(l.r.opts.ThrottleBackoff)
	}
}

// cleanup stops the capture process if still alive and appends the final
// log entry. Runs unconditionally on loop exit.
func (l *loopRun) cleanup() {
	if l.capture != nil {
		l.capture.Stop()
	}
	l.log(nil, "Monitoring stopped.", false)
}

// log appends an entry to the session's persistent log
func (l *loopRun) log(frame *int, message string, alert bool) {
	entry := &store.LogEntry{
		SessionID:   l.sessionID,
		FrameNumber: frame,
		Message:     message,
		IsAlert:     alert,
	}
	if err := l.r.store.AppendLog(entry); err != nil {
		logger.Warn().
			Str("session", l.sessionID).
			Err(err).
			Msg("Failed to append log entry")
		return
	}

	evt := logger.Debug().Str("session", l.sessionID)
	if frame != nil {
		evt = evt.Int("frame", *frame)
	}
	if alert {
		evt = evt.Bool("alert", true)
	}
	evt.Msg(message)
}

func encodeFrame(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
