package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	app_name TEXT NOT NULL,
	user_id TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT '{}',
	remembered_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_app ON sessions(app_name);

CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	id TEXT NOT NULL,
	invocation_id TEXT NOT NULL,
	author TEXT NOT NULL,
	kind TEXT NOT NULL,
	text TEXT,
	tool_name TEXT,
	payload TEXT,
	ts TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

CREATE TABLE IF NOT EXISTS artifacts (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	filename TEXT NOT NULL,
	version INTEGER NOT NULL,
	data BLOB NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (session_id, filename, version)
);
`

// SQLiteStore persists sessions in a SQLite database through the pure-Go
// modernc.org/sqlite driver.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writers; SQLite allows one at a time
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dsn, which is
// either a filesystem path or a "file:" DSN.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps "file::memory:" databases coherent and
	// avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func (s *SQLiteStore) CreateSession(ctx context.Context, appName, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrAlreadyExists)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, app_name, user_id, state, created_at, updated_at) VALUES (?, ?, ?, '{}', ?, ?)`,
		sessionID, appName, userID, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Session{
		ID:        sessionID,
		AppName:   appName,
		UserID:    userID,
		State:     map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                 Session
		stateJSON            string
		remembered           sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&sess.ID, &sess.AppName, &sess.UserID, &stateJSON, &remembered, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sess.State = map[string]string{}
	if err := json.Unmarshal([]byte(stateJSON), &sess.State); err != nil {
		return nil, fmt.Errorf("corrupt state for session %s: %w", sess.ID, err)
	}
	if remembered.Valid {
		t := parseTime(remembered.String)
		sess.RememberedAt = &t
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

const sessionColumns = `id, app_name, user_id, state, remembered_at, created_at, updated_at`

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invocation_id, author, kind, text, tool_name, payload, ts FROM events WHERE session_id = ? ORDER BY seq`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			ev                    Event
			kind, ts              string
			text, tool, payloadJS sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.InvocationID, &ev.Author, &kind, &text, &tool, &payloadJS, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.Text = text.String
		ev.ToolName = tool.String
		ev.Timestamp = parseTime(ts)
		if payloadJS.Valid && payloadJS.String != "" {
			if err := json.Unmarshal([]byte(payloadJS.String), &ev.Payload); err != nil {
				return nil, fmt.Errorf("corrupt event payload %s: %w", ev.ID, err)
			}
		}
		sess.Events = append(sess.Events, ev)
	}
	return sess, rows.Err()
}

func (s *SQLiteStore) ListSessions(ctx context.Context, appName string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE app_name = ? ORDER BY created_at DESC, id`, appName)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateState(ctx context.Context, sessionID string, delta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stateJSON string
	err = tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	state := map[string]string{}
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return fmt.Errorf("corrupt state for session %s: %w", sessionID, err)
	}
	for k, v := range delta {
		state[k] = v
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`,
		string(data), formatTime(s.now()), sessionID); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, sessionID string, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	var payload sql.NullString
	if len(event.Payload) > 0 {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode event payload: %w", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
		formatTime(event.Timestamp), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, id, invocation_id, author, kind, text, tool_name, payload, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, event.ID, event.InvocationID, event.Author, string(event.Kind),
		event.Text, event.ToolName, payload, formatTime(event.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveArtifact(ctx context.Context, sessionID, filename string, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check session: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), -1) + 1 FROM artifacts WHERE session_id = ? AND filename = ?`,
		sessionID, filename).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to compute artifact version: %w", err)
	}

	if data == nil {
		data = []byte{}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO artifacts (session_id, filename, version, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, filename, version, data, formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to save artifact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit artifact: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) LoadArtifact(ctx context.Context, sessionID, filename string, version int) (*Artifact, error) {
	var row *sql.Row
	if version < 0 {
		row = s.db.QueryRowContext(ctx,
			`SELECT version, data, created_at FROM artifacts WHERE session_id = ? AND filename = ? ORDER BY version DESC LIMIT 1`,
			sessionID, filename)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT version, data, created_at FROM artifacts WHERE session_id = ? AND filename = ? AND version = ?`,
			sessionID, filename, version)
	}

	a := Artifact{Filename: filename}
	var createdAt string
	err := row.Scan(&a.Version, &a.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (s *SQLiteStore) Remember(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET remembered_at = ? WHERE id = ?`,
		formatTime(s.now()), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
