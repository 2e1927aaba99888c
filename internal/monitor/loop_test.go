package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cgale/vigil/internal/inference"
	"github.com/cgale/vigil/internal/store"
)

type stubResolver struct {
	url string
	err error
}

func (r *stubResolver) Resolve(ctx context.Context, sourceURL string) (string, error) {
	return r.url, r.err
}

type step struct {
	reply string
	err   error
}

// scriptedClient replays a fixed sequence of replies/errors
type scriptedClient struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Classify(ctx context.Context, system string, turns []inference.Turn) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.calls
	c.calls++
	if i >= len(c.steps) {
		return "No change observed", nil
	}
	return c.steps[i].reply, c.steps[i].err
}

func (c *scriptedClient) Close() error { return nil }

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeCapture struct {
	stops atomic.Int32
}

func (c *fakeCapture) Alive() bool { return false }
func (c *fakeCapture) Stop()       { c.stops.Add(1) }

func testOptions(t *testing.T) Options {
	return Options{
		FrameRoot:       t.TempDir(),
		FrameInterval:   6 * time.Second,
		FrameTimeout:    time.Second,
		PollInterval:    5 * time.Millisecond,
		ThrottleBackoff: time.Millisecond,
		StopGrace:       time.Second,
	}
}

func newTestStore(t *testing.T) store.SessionStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// frameWritingStarter pre-writes the given frame count into the output
// directory and hands back a dead capture, simulating a producer that
// stopped after those frames.
func frameWritingStarter(frames int, capture *fakeCapture) captureStarter {
	return func(streamURL, outputDir string) (captureHandle, error) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, err
		}
		for i := 1; i <= frames; i++ {
			if err := os.WriteFile(FramePath(outputDir, i), []byte("jpeg-bytes"), 0644); err != nil {
				return nil, err
			}
		}
		return capture, nil
	}
}

func messages(t *testing.T, st store.SessionStore, sessionID string) []string {
	t.Helper()
	entries, err := st.LogsSince(sessionID, 0)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func TestLoopCompletesWithoutDetection(t *testing.T) {
	st := newTestStore(t)
	client := &scriptedClient{steps: []step{
		{reply: "No change observed"},
		{reply: "No change observed"},
		{reply: "No change observed"},
	}}
	capture := &fakeCapture{}

	runner := NewRunner(st, &stubResolver{url: "http://cdn/stream.m3u8"}, client, testOptions(t))
	runner.startCapture = frameWritingStarter(3, capture)

	sess, err := st.CreateSession("https://example.com/live", "a dog enters the yard")
	if err != nil {
		t.Fatal(err)
	}

	runner.Run(sess.ID)

	sess, err = st.GetSession(sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Status != store.StatusCompleted {
		t.Errorf("got status %q, want completed", sess.Status)
	}
	if sess.EventDetected {
		t.Error("event flagged as detected")
	}
	if sess.StreamURL != "http://cdn/stream.m3u8" {
		t.Errorf("got stream url %q", sess.StreamURL)
	}
	if client.callCount() != 3 {
		t.Errorf("got %d inference calls, want 3", client.callCount())
	}
	if capture.stops.Load() == 0 {
		t.Error("capture process never stopped")
	}

	msgs := messages(t, st, sess.ID)
	processed := 0
	completed := 0
	for _, m := range msgs {
		if strings.HasPrefix(m, "Processing frame") {
			processed++
		}
		if strings.Contains(m, "completed without detecting") {
			completed++
		}
	}
	if processed != 3 {
		t.Errorf("got %d frame processing entries, want 3", processed)
	}
	if completed != 1 {
		t.Errorf("got %d completion entries, want 1", completed)
	}
	if len(msgs) == 0 || msgs[len(msgs)-1] != "Monitoring stopped." {
		t.Errorf("final entry is %q, want the stopped marker", msgs[len(msgs)-1])
	}
}

func TestLoopDetectsEvent(t *testing.T) {
	st := newTestStore(t)
	client := &scriptedClient{steps: []step{
		{reply: "No change observed"},
		{reply: "Yes, the event happened"},
	}}
	capture := &fakeCapture{}

	runner := NewRunner(st, &stubResolver{url: "http://cdn/stream.m3u8"}, client, testOptions(t))
	runner.startCapture = frameWritingStarter(3, capture)

	sess, err := st.CreateSession("https://example.com/live", "goal")
	if err != nil {
		t.Fatal(err)
	}

	runner.Run(sess.ID)

	sess, err = st.GetSession(sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Status != store.StatusCompleted {
		t.Errorf("got status %q, want completed", sess.Status)
	}
	if !sess.EventDetected {
		t.Error("event not flagged as detected")
	}
	if sess.LastFrameNumber != 2 {
		t.Errorf("got last frame %d, want 2", sess.LastFrameNumber)
	}
	if client.callCount() != 2 {
		t.Errorf("got %d inference calls, want 2", client.callCount())
	}

	alerts, err := st.Alerts(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].FrameNumber == nil || *alerts[0].FrameNumber != 2 {
		t.Errorf("alert not attached to frame 2: %+v", alerts[0])
	}
	if capture.stops.Load() == 0 {
		t.Error("capture process never stopped")
	}
}

func TestLoopRetriesThrottledRequests(t *testing.T) {
	st := newTestStore(t)
	client := &scriptedClient{steps: []step{
		{err: inference.ErrThrottled},
		{err: inference.ErrThrottled},
		{reply: "No change observed"},
	}}

	runner := NewRunner(st, &stubResolver{url: "http://cdn/stream.m3u8"}, client, testOptions(t))
	runner.startCapture = frameWritingStarter(1, &fakeCapture{})

	sess, err := st.CreateSession("https://example.com/live", "goal")
	if err != nil {
		t.Fatal(err)
	}

	runner.Run(sess.ID)

	sess, err = st.GetSession(sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Throttling is never surfaced: the session still completes cleanly
	if sess.Status != store.StatusCompleted {
		t.Errorf("got status %q, want completed", sess.Status)
	}
	if sess.ErrorMessage != "" {
		t.Errorf("got error message %q, want none", sess.ErrorMessage)
	}
	if client.callCount() != 3 {
		t.Errorf("got %d inference calls for one frame, want 3", client.callCount())
	}

	retries := 0
	for _, m := range messages(t, st, sess.ID) {
		if strings.Contains(m, "Rate limit hit") {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("got %d retry entries, want 2", retries)
	}
}

func TestLoopInferenceFailureEndsInError(t *testing.T) {
	st := newTestStore(t)
	client := &scriptedClient{steps: []step{
		{err: errors.New("API error (401): invalid key")},
	}}
	capture := &fakeCapture{}

	runner := NewRunner(st, &stubResolver{url: "http://cdn/stream.m3u8"}, client, testOptions(t))
	runner.startCapture = frameWritingStarter(1, capture)

	sess, err := st.CreateSession("https://example.com/live", "goal")
	if err != nil {
		t.Fatal(err)
	}

	runner.Run(sess.ID)

	sess, err = st.GetSession(sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Status != store.StatusError {
		t.Fatalf("got status %q, want error", sess.Status)
	}
	if !strings.Contains(sess.ErrorMessage, "classify frame 1") {
		t.Errorf("got error message %q", sess.ErrorMessage)
	}
	if capture.stops.Load() == 0 {
		t.Error("capture process not stopped on the error path")
	}
}

func TestLoopResolutionFailureEndsInError(t *testing.T) {
	st := newTestStore(t)
	var started atomic.Int32

	runner := NewRunner(st, &stubResolver{err: errors.New("no playable stream found")}, &scriptedClient{}, testOptions(t))
	runner.startCapture = func(streamURL, outputDir string) (captureHandle, error) {
		started.Add(1)
		return &fakeCapture{}, nil
	}

	sess, err := st.CreateSession("https://example.com/dead", "goal")
	if err != nil {
		t.Fatal(err)
	}

	runner.Run(sess.ID)

	sess, err = st.GetSession(sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Status != store.StatusError {
		t.Fatalf("got status %q, want error", sess.Status)
	}
	if !strings.Contains(sess.ErrorMessage, "resolve stream") {
		t.Errorf("got error message %q", sess.ErrorMessage)
	}
	if started.Load() != 0 {
		t.Error("capture started despite resolution failure")
	}

	msgs := messages(t, st, sess.ID)
	if len(msgs) == 0 || msgs[len(msgs)-1] != "Monitoring stopped." {
		t.Error("stopped marker missing after error")
	}
}

func TestLoopFrameTimeoutCompletes(t *testing.T) {
	st := newTestStore(t)
	client := &scriptedClient{steps: []step{{reply: "No change observed"}}}

	// Alive producer that never writes frame 2
	runner := NewRunner(st, &stubResolver{url: "http://cdn/stream.m3u8"}, client, testOptions(t))
	runner.startCapture = func(streamURL, outputDir string) (captureHandle, error) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(FramePath(outputDir, 1), []byte("jpeg"), 0644); err != nil {
			return nil, err
		}
		return &aliveCapture{}, nil
	}

	sess, err := st.CreateSession("https://example.com/live", "goal")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	runner.Run(sess.ID)
	elapsed := time.Since(start)

	sess, err = st.GetSession(sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Status != store.StatusCompleted {
		t.Errorf("got status %q, want completed", sess.Status)
	}
	if sess.EventDetected {
		t.Error("event flagged as detected")
	}
	// One 1s timeout waiting for frame 2, with slack
	if elapsed > 5*time.Second {
		t.Errorf("loop took %v, expected prompt timeout", elapsed)
	}

	timedOut := false
	for _, m := range messages(t, st, sess.ID) {
		if strings.Contains(m, "Timed out waiting") {
			timedOut = true
		}
	}
	if !timedOut {
		t.Error("timeout entry missing")
	}
}

type aliveCapture struct {
	stops atomic.Int32
}

func (c *aliveCapture) Alive() bool { return true }
func (c *aliveCapture) Stop()       { c.stops.Add(1) }
