package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/llm"
	"github.com/shinji-kodama/blog-agent/internal/store"
)

// DefaultUserID is used when the caller does not identify a user.
const DefaultUserID = "user"

// RunResult summarizes one Runner.Run call.
type RunResult struct {
	SessionID    string            `json:"session_id"`
	InvocationID string            `json:"invocation_id"`
	Outputs      []Output          `json:"outputs"`
	FinalText    string            `json:"final_text"`
	State        map[string]string `json:"state"`
	Usage        llm.Usage         `json:"usage"`
}

// Runner executes a root agent against stored sessions.
type Runner struct {
	AppName           string
	Root              Agent
	Store             store.Store
	GlobalInstruction string
	Author            string
	Logger            *zap.Logger
	Now               func() time.Time
}

// Run appends message to the session and runs the root agent. An empty
// sessionID starts a new session; an unknown one is created with that ID.
func (r *Runner) Run(ctx context.Context, sessionID, message string) (*RunResult, error) {
	if message == "" {
		return nil, fmt.Errorf("message must not be empty")
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	sess, err := r.loadOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{
		ID:                "e-" + uuid.NewString(),
		Session:           sess,
		UserMessage:       message,
		Store:             r.Store,
		Logger:            r.Logger,
		State:             sess.State,
		GlobalInstruction: r.GlobalInstruction,
		Author:            r.Author,
		Now:               now,
	}

	if err := inv.appendEvent(ctx, store.Event{Author: DefaultUserID, Kind: store.EventMessage, Text: message}); err != nil {
		return nil, err
	}

	r.Logger.Info("run started",
		zap.String("session", sess.ID), zap.String("invocation", inv.ID), zap.String("agent", r.Root.Name()))

	if err := r.Root.Run(ctx, inv); err != nil {
		r.Logger.Error("run failed", zap.String("session", sess.ID), zap.Error(err))
		return nil, err
	}

	result := &RunResult{
		SessionID:    sess.ID,
		InvocationID: inv.ID,
		Outputs:      inv.Outputs,
		State:        inv.State,
		Usage:        inv.Usage,
	}
	if n := len(inv.Outputs); n > 0 {
		result.FinalText = inv.Outputs[n-1].Text
	}
	return result, nil
}

func (r *Runner) loadOrCreate(ctx context.Context, sessionID string) (*store.Session, error) {
	if sessionID != "" {
		sess, err := r.Store.GetSession(ctx, sessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load session: %w", err)
		}
	}

	sess, err := r.Store.CreateSession(ctx, r.AppName, DefaultUserID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}
