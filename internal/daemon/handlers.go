package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cgale/vigil/internal/monitor"
	"github.com/cgale/vigil/internal/store"
)

// Handlers contains the HTTP handlers for the daemon API
type Handlers struct {
	store     store.SessionStore
	registry  *monitor.Registry
	startedAt time.Time
	version   string
}

// NewHandlers creates a new handlers instance
func NewHandlers(st store.SessionStore, registry *monitor.Registry, version string) *Handlers {
	return &Handlers{
		store:     st,
		registry:  registry,
		startedAt: time.Now(),
		version:   version,
	}
}

// Health handles the health check endpoint
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt: h.startedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateSession creates a session and starts monitoring it
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.SourceURL = strings.TrimSpace(req.SourceURL)
	req.Goal = strings.TrimSpace(req.Goal)
	if req.SourceURL == "" || req.Goal == "" {
		writeError(w, http.StatusBadRequest, "source_url and goal are required")
		return
	}

	session, err := h.store.CreateSession(req.SourceURL, req.Goal)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.registry.StartIfNeeded(session.ID)

	writeJSON(w, http.StatusCreated, toSessionResponse(session, true))
}

// Sessions handles the sessions list endpoint
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, toSessionResponse(s, h.registry.Active(s.ID)))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SessionDetail handles the session detail endpoint
func (h *Handlers) SessionDetail(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session, h.registry.Active(session.ID)))
}

// SessionStatus handles the incremental polling endpoint: entries with
// sequence id >= since, the alert subset, and the session's current state.
func (h *Handlers) SessionStatus(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var since int64
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if s, err := strconv.ParseInt(sinceStr, 10, 64); err == nil && s > 0 {
			since = s
		}
	}

	entries, err := h.store.LogsSince(session.ID, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	alerts, err := h.store.Alerts(session.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponse{
		SessionID:     session.ID,
		Status:        session.Status,
		StreamURL:     session.StreamURL,
		EventDetected: session.EventDetected,
		LastFrame:     session.LastFrameNumber,
		ErrorMessage:  session.ErrorMessage,
		Entries:       make([]LogEntryResponse, 0, len(entries)),
		Alerts:        make([]LogEntryResponse, 0, len(alerts)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toLogEntryResponse(e))
	}
	for _, e := range alerts {
		resp.Alerts = append(resp.Alerts, toLogEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
