package monitor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistrySingleRunPerSession(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})

	reg := NewRegistry(func(sessionID string) {
		runs.Add(1)
		<-release
	})

	reg.StartIfNeeded("sess-1")
	waitFor(t, func() bool { return reg.Active("sess-1") })

	// Second start while the first is still running is a no-op
	reg.StartIfNeeded("sess-1")
	time.Sleep(20 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("got %d runs, want 1", got)
	}

	close(release)
	waitFor(t, func() bool { return !reg.Active("sess-1") })
}

func TestRegistryConcurrentStartsLaunchOnce(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})

	reg := NewRegistry(func(sessionID string) {
		runs.Add(1)
		<-release
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.StartIfNeeded("sess-1")
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return runs.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("got %d runs from 10 concurrent starts, want 1", got)
	}
	close(release)
}

func TestRegistryRestartAfterExit(t *testing.T) {
	var runs atomic.Int32
	reg := NewRegistry(func(sessionID string) {
		runs.Add(1)
	})

	reg.StartIfNeeded("sess-1")
	waitFor(t, func() bool { return !reg.Active("sess-1") && runs.Load() == 1 })

	// The id was released when the loop exited, so a later call restarts
	reg.StartIfNeeded("sess-1")
	waitFor(t, func() bool { return runs.Load() == 2 })
}

func TestRegistryIndependentSessions(t *testing.T) {
	release := make(chan struct{})
	reg := NewRegistry(func(sessionID string) {
		<-release
	})

	reg.StartIfNeeded("sess-1")
	reg.StartIfNeeded("sess-2")
	waitFor(t, func() bool { return reg.ActiveCount() == 2 })

	if !reg.Active("sess-1") || !reg.Active("sess-2") {
		t.Error("both sessions should be active")
	}
	close(release)
	waitFor(t, func() bool { return reg.ActiveCount() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
