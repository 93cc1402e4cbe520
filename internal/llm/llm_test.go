package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name         string
		wantProvider Provider
		wantModel    string
	}{
		{"gemini-2.5-flash", ProviderGemini, "gemini-2.5-flash"},
		{"openrouter/anthropic/claude-sonnet-4", ProviderOpenRouter, "anthropic/claude-sonnet-4"},
		{"OpenRouter/openai/gpt-4o", ProviderOpenRouter, "openai/gpt-4o"},
		{"google/gemini-2.5-pro", ProviderOpenRouter, "google/gemini-2.5-pro"},
		{" gemini-2.5-pro ", ProviderGemini, "gemini-2.5-pro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model := ResolveModel(tt.name)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestNew_MissingKeys(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, "gemini-2.5-flash", Keys{}, zap.NewNop())
	assert.ErrorContains(t, err, "GOOGLE_API_KEY")

	_, err = New(ctx, "openrouter/x/y", Keys{}, zap.NewNop())
	assert.ErrorContains(t, err, "OPENROUTER_API_KEY")

	m, err := New(ctx, "openrouter/x/y", Keys{OpenRouterAPIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "x/y", m.Name())
}

func newTestOpenRouter(t *testing.T, url string) *OpenRouterModel {
	t.Helper()
	m, err := NewOpenRouterModel(OpenRouterConfig{APIKey: "key", BaseURL: url, Model: "x/y"}, zap.NewNop())
	require.NoError(t, err)
	m.backoff = func(int) time.Duration { return time.Millisecond }
	return m
}

// TestOpenRouter_ToolRoundTrip verifies request encoding (system prompt,
// tool declarations, tool results) and decoding of tool calls.
func TestOpenRouter_ToolRoundTrip(t *testing.T) {
	var captured orRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		_, _ = io.WriteString(w, `{
			"choices": [{"message": {"role": "assistant", "content": "",
				"tool_calls": [{"id": "c1", "type": "function",
					"function": {"name": "save_blog_content", "arguments": "{\"slug\":\"hi\"}"}}]}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`)
	}))
	defer server.Close()

	m := newTestOpenRouter(t, server.URL)
	resp, err := m.Generate(context.Background(), &Request{
		System: "be brief",
		Contents: []Content{
			{Role: RoleUser, Text: "write"},
			{Role: RoleModel, ToolCalls: []ToolCall{{Name: "lookup", Args: map[string]any{"q": "go"}}}},
			{Role: RoleTool, ToolResults: []ToolResult{{Name: "lookup", Response: map[string]any{"status": "success"}}}},
		},
		Tools: []ToolSpec{{Name: "save_blog_content", Description: "save", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	require.Len(t, captured.Messages[2].ToolCalls, 1)
	generatedID := captured.Messages[2].ToolCalls[0].ID
	assert.NotEmpty(t, generatedID)
	assert.Equal(t, "tool", captured.Messages[3].Role)
	assert.Equal(t, generatedID, captured.Messages[3].ToolCallID, "tool results reference generated call IDs")
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)

	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "save_blog_content", resp.ToolCalls[0].Name)
	assert.Equal(t, "hi", resp.ToolCalls[0].Args["slug"])
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 3}, resp.Usage)
}

func TestOpenRouter_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":" done "}}]}`)
	}))
	defer server.Close()

	resp, err := newTestOpenRouter(t, server.URL).Generate(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenRouter_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestOpenRouter(t, server.URL).Generate(context.Background(), &Request{})
	assert.ErrorContains(t, err, "max retries exceeded")
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
}

func TestOpenRouter_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad model"}}`)
	}))
	defer server.Close()

	_, err := newTestOpenRouter(t, server.URL).Generate(context.Background(), &Request{})
	assert.ErrorContains(t, err, "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

// TestToGenaiContents checks the role mapping: model turns keep text and
// function calls, tool results become user-role function responses.
func TestToGenaiContents(t *testing.T) {
	contents := toGenaiContents([]Content{
		{Role: RoleUser, Text: "topic"},
		{Role: RoleModel, Text: "saving", ToolCalls: []ToolCall{{ID: "1", Name: "save", Args: map[string]any{"a": "b"}}}},
		{Role: RoleTool, ToolResults: []ToolResult{{CallID: "1", Name: "save", Response: map[string]any{"status": "success"}}}},
		{Role: RoleModel},
	})

	require.Len(t, contents, 3, "empty model turns are dropped")
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "topic", contents[0].Parts[0].Text)

	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "save", contents[1].Parts[1].FunctionCall.Name)

	assert.Equal(t, genai.RoleUser, contents[2].Role)
	fr := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "1", fr.ID)
	assert.Equal(t, "success", fr.Response["status"])
}

func TestFromGenaiResponse(t *testing.T) {
	resp, err := fromGenaiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "Saved."},
			{FunctionCall: &genai.FunctionCall{Name: "publish_blog_to_github", Args: map[string]any{"file_name": "a.md"}}},
		}}}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Saved.", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "a.md", resp.ToolCalls[0].Args["file_name"])
	assert.Equal(t, Usage{PromptTokens: 5, CompletionTokens: 2}, resp.Usage)

	_, err = fromGenaiResponse(&genai.GenerateContentResponse{})
	assert.ErrorContains(t, err, "no candidates")
}
