package daemon

import (
	"time"

	"github.com/cgale/vigil/internal/store"
)

// CreateSessionRequest is the body of POST /api/sessions
type CreateSessionRequest struct {
	SourceURL string `json:"source_url"`
	Goal      string `json:"goal"`
}

// SessionResponse represents a session in API responses
type SessionResponse struct {
	SessionID       string       `json:"session_id"`
	SourceURL       string       `json:"source_url"`
	Goal            string       `json:"goal"`
	StreamURL       string       `json:"stream_url,omitempty"`
	Status          store.Status `json:"status"`
	EventDetected   bool         `json:"event_detected"`
	LastFrameNumber int          `json:"last_frame_number"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	Active          bool         `json:"active"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// LogEntryResponse represents a log entry in API responses
type LogEntryResponse struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	FrameNumber *int      `json:"frame_number,omitempty"`
	Message     string    `json:"message"`
	IsAlert     bool      `json:"is_alert"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusResponse is the polling payload for one session: everything an
// external observer needs to render progress incrementally.
type StatusResponse struct {
	SessionID     string             `json:"session_id"`
	Status        store.Status       `json:"status"`
	StreamURL     string             `json:"stream_url,omitempty"`
	EventDetected bool               `json:"event_detected"`
	LastFrame     int                `json:"last_frame_number"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	Entries       []LogEntryResponse `json:"entries"`
	Alerts        []LogEntryResponse `json:"alerts"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
}

// SSEEvent represents a server-sent event
type SSEEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"-"`
	Data      any    `json:"data"`
}

// SSE event types
const (
	SSELogNew    = "log_new"
	SSEAlert     = "alert"
	SSEHeartbeat = "heartbeat"
)

func toLogEntryResponse(e *store.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID:          e.ID,
		SessionID:   e.SessionID,
		FrameNumber: e.FrameNumber,
		Message:     e.Message,
		IsAlert:     e.IsAlert,
		CreatedAt:   e.CreatedAt,
	}
}

func toSessionResponse(s *store.Session, active bool) SessionResponse {
	return SessionResponse{
		SessionID:       s.ID,
		SourceURL:       s.SourceURL,
		Goal:            s.Goal,
		StreamURL:       s.StreamURL,
		Status:          s.Status,
		EventDetected:   s.EventDetected,
		LastFrameNumber: s.LastFrameNumber,
		ErrorMessage:    s.ErrorMessage,
		Active:          active,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
