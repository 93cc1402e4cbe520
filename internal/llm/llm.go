// Package llm is the model abstraction used by the agent runtime.
//
// A Model turns a Request (system instruction, conversation and tool
// declarations) into a Response holding either text, tool calls, or both.
// Two backends are provided: Gemini through the Google GenAI SDK and any
// OpenRouter-hosted model through its OpenAI-compatible chat API.
package llm

import (
	"context"
)

// Role identifies the author of a Content entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleTool carries tool results back to the model.
	RoleTool Role = "tool"
)

// ToolSpec declares a callable function to the model. Parameters is a JSON
// Schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its ToolResult. Backends that do not
	// assign IDs leave it empty.
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the response to a ToolCall.
type ToolResult struct {
	CallID   string
	Name     string
	Response map[string]any
}

// Content is one turn of the conversation.
type Content struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Request is a single model invocation.
type Request struct {
	System   string
	Contents []Content
	Tools    []ToolSpec
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the model output for one Request.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// HasToolCalls reports whether the model asked for at least one function call.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Model generates responses.
type Model interface {
	// Name returns the model identifier sent to the provider.
	Name() string

	Generate(ctx context.Context, req *Request) (*Response, error)
}
