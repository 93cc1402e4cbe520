// Package store persists agent sessions and their artifacts.
//
// A session holds the key/value state shared between the writer and the
// publisher agents plus the ordered event log of a conversation. Artifacts
// are named blobs attached to a session; every save creates a new version,
// numbered from 0.
//
// Two backends exist: an in-memory store used when DATABASE_URL is empty,
// and a SQLite store for deployments that must survive restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a session or artifact does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating a session whose ID is taken.
var ErrAlreadyExists = errors.New("already exists")

// EventKind classifies an entry in the session event log.
type EventKind string

const (
	// EventMessage is plain text from the user or an agent.
	EventMessage EventKind = "message"

	// EventToolCall records a function call requested by the model.
	EventToolCall EventKind = "tool_call"

	// EventToolResult records the response returned to the model.
	EventToolResult EventKind = "tool_result"
)

// Event is one entry in a session's history.
type Event struct {
	ID           string         `json:"id"`
	InvocationID string         `json:"invocationId"`
	// Author is "user" or the name of the agent that produced the event.
	Author    string         `json:"author"`
	Kind      EventKind      `json:"kind"`
	Text      string         `json:"text,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Session is a conversation and its shared state.
type Session struct {
	ID      string            `json:"id"`
	AppName string            `json:"appName"`
	UserID  string            `json:"userId"`
	State   map[string]string `json:"state"`
	Events  []Event           `json:"events"`

	// RememberedAt is set once the session has been archived to long-term
	// memory after a completed run.
	RememberedAt *time.Time `json:"rememberedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Artifact is one version of a named blob.
type Artifact struct {
	Filename  string    `json:"filename"`
	Version   int       `json:"version"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// LatestVersion asks LoadArtifact for the newest version.
const LatestVersion = -1

// Store is implemented by every session backend. All methods are safe for
// concurrent use.
type Store interface {
	// CreateSession creates an empty session. A blank sessionID is replaced
	// by a generated UUID.
	CreateSession(ctx context.Context, appName, userID, sessionID string) (*Session, error)

	// GetSession returns a copy of the session including its events.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSessions returns sessions of appName without their events,
	// newest first.
	ListSessions(ctx context.Context, appName string) ([]*Session, error)

	// UpdateState merges delta into the session state.
	UpdateState(ctx context.Context, sessionID string, delta map[string]string) error

	// AppendEvent adds an event to the end of the session log.
	AppendEvent(ctx context.Context, sessionID string, event Event) error

	// SaveArtifact stores data as the next version of filename and returns
	// that version.
	SaveArtifact(ctx context.Context, sessionID, filename string, data []byte) (int, error)

	// LoadArtifact returns the given version of filename, or the newest
	// when version is negative (LatestVersion).
	LoadArtifact(ctx context.Context, sessionID, filename string, version int) (*Artifact, error)

	// Remember marks the session as archived to long-term memory.
	Remember(ctx context.Context, sessionID string) error

	Close() error
}

// Open selects a backend from a DATABASE_URL value.
//
//   - ""                   in-memory store
//   - sqlite:///abs/path   SQLite database at /abs/path
//   - sqlite://rel/path    SQLite database at rel/path
//   - file:...             SQLite DSN passed to the driver unchanged
//
// Any other scheme is rejected.
func Open(databaseURL string) (Store, error) {
	switch {
	case databaseURL == "":
		return NewMemoryStore(), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" || path == "/" {
			return nil, fmt.Errorf("DATABASE_URL %q has no database path", databaseURL)
		}
		return NewSQLiteStore(path)
	case strings.HasPrefix(databaseURL, "file:"):
		return NewSQLiteStore(databaseURL)
	default:
		scheme := databaseURL
		if i := strings.Index(databaseURL, "://"); i >= 0 {
			scheme = databaseURL[:i]
		}
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme %q: use sqlite:///path or file: DSN, or leave empty for in-memory sessions", scheme)
	}
}

func copySession(s *Session, withEvents bool) *Session {
	out := *s
	out.State = make(map[string]string, len(s.State))
	for k, v := range s.State {
		out.State[k] = v
	}
	if withEvents {
		out.Events = append([]Event(nil), s.Events...)
	} else {
		out.Events = nil
	}
	if s.RememberedAt != nil {
		t := *s.RememberedAt
		out.RememberedAt = &t
	}
	return &out
}
