package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinji-kodama/blog-agent/internal/store"
)

// Context gives a tool access to the session it runs in.
type Context struct {
	SessionID    string
	InvocationID string
	AgentName    string

	store store.Store
	state map[string]string
}

// NewContext binds a tool context to a session. state is the caller's view
// of the session state and is updated in place by SetState.
func NewContext(st store.Store, sessionID, invocationID, agentName string, state map[string]string) *Context {
	if state == nil {
		state = map[string]string{}
	}
	return &Context{
		SessionID:    sessionID,
		InvocationID: invocationID,
		AgentName:    agentName,
		store:        st,
		state:        state,
	}
}

// State returns a state value.
func (c *Context) State(key string) (string, bool) {
	v, ok := c.state[key]
	return v, ok
}

// SetState persists values and mirrors them into the local view.
func (c *Context) SetState(ctx context.Context, values map[string]string) error {
	if err := c.store.UpdateState(ctx, c.SessionID, values); err != nil {
		return err
	}
	for k, v := range values {
		c.state[k] = v
	}
	return nil
}

// SaveArtifact stores a new version of filename.
func (c *Context) SaveArtifact(ctx context.Context, filename string, data []byte) (int, error) {
	return c.store.SaveArtifact(ctx, c.SessionID, filename, data)
}

// LoadArtifact returns the latest version of filename. found is false when
// nothing was saved under that name.
func (c *Context) LoadArtifact(ctx context.Context, filename string) (data []byte, found bool, err error) {
	a, err := c.store.LoadArtifact(ctx, c.SessionID, filename, store.LatestVersion)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load artifact %s: %w", filename, err)
	}
	return a.Data, true, nil
}
