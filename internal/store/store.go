// Package store persists monitoring sessions and their append-only logs.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cgale/vigil/internal/logger"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// ErrNotFound signals a lookup or transition against an unknown session id
var ErrNotFound = errors.New("session not found")

// SessionStore defines the interface for session/log persistence
type SessionStore interface {
	// Session lifecycle
	CreateSession(sourceURL, goal string) (*Session, error)
	GetSession(sessionID string) (*Session, error)
	ListSessions() ([]*Session, error)

	// State transitions, issued only by the owning loop
	MarkRunning(sessionID, outputDir string) error
	SetStreamURL(sessionID, streamURL string) error
	MarkCompleted(sessionID string, eventDetected bool) error
	MarkError(sessionID, message string) error

	// Log management
	AppendLog(entry *LogEntry) error
	LogsSince(sessionID string, minID int64) ([]*LogEntry, error)
	Alerts(sessionID string) ([]*LogEntry, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements SessionStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed session store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".vigil", "sessions.db")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	// WAL mode: loops write while pollers read
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug().
		Str("path", dbPath).
		Msg("Opened session store")

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		goal TEXT NOT NULL,
		stream_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		event_detected INTEGER NOT NULL DEFAULT 0,
		last_frame_number INTEGER NOT NULL DEFAULT 0,
		output_dir TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		started_at INTEGER,
		finished_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		frame_number INTEGER,
		message TEXT NOT NULL,
		is_alert INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_logs_session ON logs(session_id, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateSession creates a new session in the pending state
func (s *SQLiteStore) CreateSession(sourceURL, goal string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	id := uuid.NewString()

	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, source_url, goal, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sourceURL, goal, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Session{
		ID:        id,
		SourceURL: sourceURL,
		Goal:      goal,
		Status:    StatusPending,
		CreatedAt: time.Unix(now, 0),
		UpdatedAt: time.Unix(now, 0),
	}, nil
}

// GetSession retrieves a session by ID
func (s *SQLiteStore) GetSession(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSessionLocked(sessionID)
}

const sessionColumns = `session_id, source_url, goal, stream_url, status, event_detected,
	 last_frame_number, output_dir, error_message, started_at, finished_at, created_at, updated_at`

func (s *SQLiteStore) getSessionLocked(sessionID string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`,
		sessionID,
	)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns all sessions, newest first
func (s *SQLiteStore) ListSessions() ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC, session_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var detected int
	var startedAt, finishedAt sql.NullInt64
	var createdAt, updatedAt int64
	var status string

	err := row.Scan(
		&session.ID, &session.SourceURL, &session.Goal, &session.StreamURL,
		&status, &detected, &session.LastFrameNumber, &session.OutputDir,
		&session.ErrorMessage, &startedAt, &finishedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = Status(status)
	session.EventDetected = detected != 0
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		session.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		session.FinishedAt = &t
	}
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	return &session, nil
}

// MarkRunning transitions a session to running: records the start time and
// output directory, clears any prior error and detection flag.
func (s *SQLiteStore) MarkRunning(sessionID, outputDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE sessions
		 SET status = ?, started_at = ?, finished_at = NULL, output_dir = ?,
		     error_message = '', event_detected = 0, updated_at = ?
		 WHERE session_id = ?`,
		StatusRunning, now, outputDir, now, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session running: %w", err)
	}
	return requireRow(result, sessionID)
}

// SetStreamURL records the resolved stream URL
func (s *SQLiteStore) SetStreamURL(sessionID, streamURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`UPDATE sessions SET stream_url = ?, updated_at = ? WHERE session_id = ?`,
		streamURL, time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to set stream url: %w", err)
	}
	return requireRow(result, sessionID)
}

// MarkCompleted transitions a session to the completed terminal state
func (s *SQLiteStore) MarkCompleted(sessionID string, eventDetected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	detected := 0
	if eventDetected {
		detected = 1
	}

	result, err := s.db.Exec(
		`UPDATE sessions
		 SET status = ?, event_detected = ?, finished_at = ?, updated_at = ?
		 WHERE session_id = ?`,
		StatusCompleted, detected, now, now, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session completed: %w", err)
	}
	return requireRow(result, sessionID)
}

// MarkError transitions a session to the error terminal state, recording the
// failure description.
func (s *SQLiteStore) MarkError(sessionID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	result, err := s.db.Exec(
		`UPDATE sessions
		 SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
		 WHERE session_id = ?`,
		StatusError, message, now, now, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session errored: %w", err)
	}
	return requireRow(result, sessionID)
}

// AppendLog stores a new log entry and bumps the session's updated
// timestamp. Entries carrying a frame number also advance the session's
// last_frame_number under a guarded update, so the frame counter never
// regresses regardless of writer interleaving.
func (s *SQLiteStore) AppendLog(entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	var frame any
	if entry.FrameNumber != nil {
		frame = *entry.FrameNumber
	}

	result, err := s.db.Exec(
		`INSERT INTO logs (session_id, frame_number, message, is_alert, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID, frame, entry.Message, boolToInt(entry.IsAlert), now,
	)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	entry.CreatedAt = time.Unix(now, 0)

	if entry.FrameNumber != nil {
		_, err = s.db.Exec(
			`UPDATE sessions SET last_frame_number = ?, updated_at = ?
			 WHERE session_id = ? AND last_frame_number < ?`,
			*entry.FrameNumber, now, entry.SessionID, *entry.FrameNumber,
		)
	} else {
		_, err = s.db.Exec(
			`UPDATE sessions SET updated_at = ? WHERE session_id = ?`,
			now, entry.SessionID,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

// LogsSince retrieves entries for a session with id >= minID, in creation
// order. Pass 0 for the full log.
func (s *SQLiteStore) LogsSince(sessionID string, minID int64) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, frame_number, message, is_alert, created_at
		 FROM logs
		 WHERE session_id = ? AND id >= ?
		 ORDER BY id ASC`,
		sessionID, minID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLogs(rows)
}

// Alerts retrieves only the alert entries for a session, in creation order
func (s *SQLiteStore) Alerts(sessionID string) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, frame_number, message, is_alert, created_at
		 FROM logs
		 WHERE session_id = ? AND is_alert = 1
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]*LogEntry, error) {
	var entries []*LogEntry

	for rows.Next() {
		var entry LogEntry
		var frame sql.NullInt64
		var isAlert int
		var createdAt int64

		if err := rows.Scan(&entry.ID, &entry.SessionID, &frame, &entry.Message, &isAlert, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		if frame.Valid {
			n := int(frame.Int64)
			entry.FrameNumber = &n
		}
		entry.IsAlert = isAlert != 0
		entry.CreatedAt = time.Unix(createdAt, 0)

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRow(result sql.Result, sessionID string) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
