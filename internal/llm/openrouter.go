package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultOpenRouterBaseURL is the OpenRouter API root.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterConfig configures an OpenRouterModel.
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	// Model is the provider/model identifier, e.g. "anthropic/claude-sonnet-4".
	Model   string
	Timeout time.Duration
	// SiteName is sent as X-Title for OpenRouter rankings.
	SiteName string
	// MaxRetries bounds retries of 429 responses and transport errors.
	MaxRetries int
}

// OpenRouterModel talks to OpenRouter's OpenAI-compatible chat completions API.
type OpenRouterModel struct {
	cfg        OpenRouterConfig
	httpClient *http.Client
	logger     *zap.Logger

	// backoff returns the wait before retry attempt n (1-based).
	backoff func(n int) time.Duration
}

// NewOpenRouterModel creates an OpenRouter backend. Zero config fields get defaults.
func NewOpenRouterModel(cfg OpenRouterConfig, logger *zap.Logger) (*OpenRouterModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required for model %q", cfg.Model)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "blog-agent"
	}

	return &OpenRouterModel{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		backoff: func(n int) time.Duration {
			return time.Duration(1<<uint(n-1)) * time.Second
		},
	}, nil
}

// Name returns the OpenRouter model identifier.
func (m *OpenRouterModel) Name() string { return m.cfg.Model }

type orFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type orTool struct {
	Type     string     `json:"type"`
	Function orFunction `json:"function"`
}

type orToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type orMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []orToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type orRequest struct {
	Model    string      `json:"model"`
	Messages []orMessage `json:"messages"`
	Tools    []orTool    `json:"tools,omitempty"`
}

type orResponse struct {
	Choices []struct {
		Message      orMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends req to /chat/completions, retrying rate limits and
// transport failures with exponential backoff.
func (m *OpenRouterModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(m.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := m.backoff(attempt)
			m.logger.Debug("retrying openrouter request",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, retry, err := m.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one HTTP round trip. The boolean reports whether the error is retryable.
func (m *OpenRouterModel) do(ctx context.Context, body []byte) (*Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	httpReq.Header.Set("X-Title", m.cfg.SiteName)

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 10*1024*1024))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(data)))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("API request failed with status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed orResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, false, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, false, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, false, fmt.Errorf("no completion returned")
	}

	msg := parsed.Choices[0].Message
	out := &Response{Text: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		if tc.Type != "" && tc.Type != "function" {
			continue
		}
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, false, fmt.Errorf("failed to unmarshal arguments for tool %s: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	if parsed.Usage != nil {
		out.Usage = Usage{PromptTokens: parsed.Usage.PromptTokens, CompletionTokens: parsed.Usage.CompletionTokens}
	}
	return out, false, nil
}

// buildRequest converts a Request to OpenAI chat messages. Tool calls
// without IDs get generated ones so results can reference them.
func (m *OpenRouterModel) buildRequest(req *Request) orRequest {
	out := orRequest{Model: m.cfg.Model}

	if strings.TrimSpace(req.System) != "" {
		out.Messages = append(out.Messages, orMessage{Role: "system", Content: req.System})
	}

	var pendingIDs []string
	for _, c := range req.Contents {
		switch c.Role {
		case RoleModel:
			msg := orMessage{Role: "assistant", Content: c.Text}
			pendingIDs = pendingIDs[:0]
			for _, call := range c.ToolCalls {
				id := call.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				pendingIDs = append(pendingIDs, id)

				args, err := json.Marshal(call.Args)
				if err != nil {
					args = []byte("{}")
				}
				tc := orToolCall{ID: id, Type: "function"}
				tc.Function.Name = call.Name
				tc.Function.Arguments = string(args)
				msg.ToolCalls = append(msg.ToolCalls, tc)
			}
			out.Messages = append(out.Messages, msg)
		case RoleTool:
			for i, res := range c.ToolResults {
				id := res.CallID
				if id == "" && i < len(pendingIDs) {
					id = pendingIDs[i]
				}
				payload, err := json.Marshal(res.Response)
				if err != nil {
					payload = []byte(`{"status":"error","message":"unencodable tool result"}`)
				}
				out.Messages = append(out.Messages, orMessage{
					Role:       "tool",
					Content:    string(payload),
					ToolCallID: id,
					Name:       res.Name,
				})
			}
		default:
			out.Messages = append(out.Messages, orMessage{Role: "user", Content: c.Text})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, orTool{
			Type:     "function",
			Function: orFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}
