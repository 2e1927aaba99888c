package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cgale/vigil/internal/logger"
	"github.com/cgale/vigil/internal/store"
)

// sseClient is one connected SSE consumer, optionally filtered to a session
type sseClient struct {
	ch        chan SSEEvent
	sessionID string
}

// SSEBroadcaster polls the store for new log entries and streams them to
// connected clients.
type SSEBroadcaster struct {
	clients      map[*sseClient]bool
	mu           sync.RWMutex
	store        store.SessionStore
	lastLogID    int64
	pollInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewSSEBroadcaster creates a new SSE broadcaster
func NewSSEBroadcaster(st store.SessionStore) *SSEBroadcaster {
	return &SSEBroadcaster{
		clients:      make(map[*sseClient]bool),
		store:        st,
		pollInterval: 500 * time.Millisecond,
		stopCh:       make(chan struct{}),
	}
}

// Start begins polling for new log entries
func (b *SSEBroadcaster) Start(ctx context.Context) {
	b.wg.Add(2)

	go func() {
		defer b.wg.Done()
		b.pollForEntries(ctx)
	}()

	go func() {
		defer b.wg.Done()
		b.sendHeartbeats(ctx)
	}()
}

// Stop stops the broadcaster
func (b *SSEBroadcaster) Stop() {
	close(b.stopCh)
	b.wg.Wait()

	b.mu.Lock()
	for c := range b.clients {
		close(c.ch)
		delete(b.clients, c)
	}
	b.mu.Unlock()
}

// Subscribe adds a new client, optionally filtered to one session
func (b *SSEBroadcaster) Subscribe(sessionID string) *sseClient {
	c := &sseClient{
		ch:        make(chan SSEEvent, 100),
		sessionID: sessionID,
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

// Unsubscribe removes a client
func (b *SSEBroadcaster) Unsubscribe(c *sseClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.ch)
	}
	b.mu.Unlock()
}

// Broadcast sends an event to all connected clients whose filter matches
func (b *SSEBroadcaster) Broadcast(event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for c := range b.clients {
		if c.sessionID != "" && event.SessionID != "" && c.sessionID != event.SessionID {
			continue
		}
		select {
		case c.ch <- event:
		default:
			logger.Debug().Msg("SSE client channel full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients
func (b *SSEBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *SSEBroadcaster) pollForEntries(ctx context.Context) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.checkForNewEntries()
		}
	}
}

func (b *SSEBroadcaster) checkForNewEntries() {
	sessions, err := b.store.ListSessions()
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to list sessions for SSE polling")
		return
	}

	// Log ids are globally increasing, so one high-water mark covers all
	// sessions.
	highWater := b.lastLogID
	for _, session := range sessions {
		entries, err := b.store.LogsSince(session.ID, b.lastLogID+1)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if entry.ID > highWater {
				highWater = entry.ID
			}

			b.Broadcast(SSEEvent{
				Type:      SSELogNew,
				SessionID: entry.SessionID,
				Data:      toLogEntryResponse(entry),
			})

			if entry.IsAlert {
				b.Broadcast(SSEEvent{
					Type:      SSEAlert,
					SessionID: entry.SessionID,
					Data:      toLogEntryResponse(entry),
				})
			}
		}
	}
	b.lastLogID = highWater
}

func (b *SSEBroadcaster) sendHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.Broadcast(SSEEvent{
				Type: SSEHeartbeat,
				Data: map[string]any{
					"time":    time.Now().UTC(),
					"clients": b.ClientCount(),
				},
			})
		}
	}
}

// ServeHTTP handles SSE connections. A session_id query parameter limits
// the stream to one session's entries.
func (b *SSEBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	client := b.Subscribe(r.URL.Query().Get("session_id"))
	defer b.Unsubscribe(client)

	writeSSEEvent(w, SSEEvent{
		Type: "connected",
		Data: map[string]any{
			"message": "Connected to vigil log stream",
			"time":    time.Now().UTC(),
		},
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-client.ch:
			if !ok {
				return
			}
			writeSSEEvent(w, event)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event SSEEvent) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return
	}

	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}
