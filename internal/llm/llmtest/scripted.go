// Package llmtest provides a deterministic llm.Model for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shinji-kodama/blog-agent/internal/llm"
)

// ScriptedModel replays canned responses in order and records every request
// it receives.
type ScriptedModel struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []*llm.Request
}

// NewScriptedModel returns a model that answers with responses in order.
func NewScriptedModel(responses ...*llm.Response) *ScriptedModel {
	return &ScriptedModel{responses: responses}
}

// FailNext queues an error that is returned before any remaining response.
func (s *ScriptedModel) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// Name implements llm.Model.
func (s *ScriptedModel) Name() string { return "scripted" }

// Generate implements llm.Model.
func (s *ScriptedModel) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("scripted model exhausted after %d requests", len(s.requests))
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

// Requests returns the requests received so far.
func (s *ScriptedModel) Requests() []*llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*llm.Request(nil), s.requests...)
}

// Text builds a text-only response.
func Text(text string) *llm.Response {
	return &llm.Response{Text: text}
}

// Call builds a response requesting a single tool call.
func Call(name string, args map[string]any) *llm.Response {
	return &llm.Response{ToolCalls: []llm.ToolCall{{ID: "call-" + name, Name: name, Args: args}}}
}
