package monitor

import (
	"sync"

	"github.com/cgale/vigil/internal/logger"
)

// Registry enforces at most one active monitoring loop per session id. It
// does not prevent different sessions from running concurrently.
type Registry struct {
	mu     sync.Mutex
	active map[string]struct{}
	run    func(sessionID string)
}

// NewRegistry creates a registry dispatching to the given loop function,
// usually Runner.Run.
func NewRegistry(run func(sessionID string)) *Registry {
	return &Registry{
		active: make(map[string]struct{}),
		run:    run,
	}
}

// StartIfNeeded launches a monitoring goroutine for the session unless one
// is already active. When the loop exits through any path the id is
// released, so a later call can start a fresh run.
func (g *Registry) StartIfNeeded(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[sessionID]; ok {
		logger.Debug().
			Str("session", sessionID).
			Msg("Monitoring loop already active")
		return
	}
	g.active[sessionID] = struct{}{}

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.active, sessionID)
			g.mu.Unlock()
		}()
		g.run(sessionID)
	}()
}

// Active reports whether a loop is currently running for the session
func (g *Registry) Active(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[sessionID]
	return ok
}

// ActiveCount returns the number of currently running loops
func (g *Registry) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
