package store

import "time"

// Status is a session's lifecycle state. Pending is the only initial state;
// completed and error are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions can leave this status
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Session represents one end-to-end monitoring run bound to one source and
// one goal.
type Session struct {
	ID              string
	SourceURL       string
	Goal            string
	StreamURL       string
	Status          Status
	EventDetected   bool
	LastFrameNumber int
	OutputDir       string
	ErrorMessage    string
	StartedAt       *time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LogEntry is one immutable observation emitted by a monitoring loop.
// ID is assigned at insert time and totally orders entries per session.
type LogEntry struct {
	ID          int64
	SessionID   string
	FrameNumber *int
	Message     string
	IsAlert     bool
	CreatedAt   time.Time
}
