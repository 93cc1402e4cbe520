package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type artifactKey struct {
	sessionID string
	filename  string
}

// MemoryStore keeps sessions in process memory. Data is lost on exit.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	artifacts map[artifactKey][]Artifact
	now       func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*Session),
		artifacts: make(map[artifactKey][]Artifact),
		now:       time.Now,
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, appName, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrAlreadyExists)
	}

	now := m.now().UTC()
	s := &Session{
		ID:        sessionID,
		AppName:   appName,
		UserID:    userID,
		State:     map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[sessionID] = s
	return copySession(s, true), nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return copySession(s, true), nil
}

func (m *MemoryStore) ListSessions(_ context.Context, appName string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.AppName == appName {
			out = append(out, copySession(s, false))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) UpdateState(_ context.Context, sessionID string, delta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	for k, v := range delta {
		s.State[k] = v
	}
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, sessionID string, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now().UTC()
	}
	s.Events = append(s.Events, event)
	s.UpdatedAt = event.Timestamp
	return nil
}

func (m *MemoryStore) SaveArtifact(_ context.Context, sessionID, filename string, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return 0, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	key := artifactKey{sessionID, filename}
	version := len(m.artifacts[key])
	m.artifacts[key] = append(m.artifacts[key], Artifact{
		Filename:  filename,
		Version:   version,
		Data:      append([]byte(nil), data...),
		CreatedAt: m.now().UTC(),
	})
	return version, nil
}

func (m *MemoryStore) LoadArtifact(_ context.Context, sessionID, filename string, version int) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.artifacts[artifactKey{sessionID, filename}]
	if len(versions) == 0 {
		return nil, fmt.Errorf("artifact %s: %w", filename, ErrNotFound)
	}
	if version < 0 {
		version = len(versions) - 1
	}
	if version < 0 || version >= len(versions) {
		return nil, fmt.Errorf("artifact %s version %d: %w", filename, version, ErrNotFound)
	}

	a := versions[version]
	a.Data = append([]byte(nil), a.Data...)
	return &a, nil
}

func (m *MemoryStore) Remember(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	now := m.now().UTC()
	s.RememberedAt = &now
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
