package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiModel calls Gemini through the Google GenAI SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiModel creates a Gemini backend. apiKey must be non-empty.
func NewGeminiModel(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required for model %q", model)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiModel{client: client, model: model, logger: logger}, nil
}

// Name returns the Gemini model identifier.
func (g *GeminiModel) Name() string { return g.model }

// Generate sends req to GenerateContent.
func (g *GeminiModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	config := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.System) != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toGenaiFunctions(req.Tools)}}
	}

	g.logger.Debug("gemini request",
		zap.String("model", g.model),
		zap.Int("contents", len(req.Contents)),
		zap.Int("tools", len(req.Tools)))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGenaiContents(req.Contents), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return fromGenaiResponse(resp)
}

func toGenaiFunctions(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return decls
}

// toGenaiContents maps the conversation onto Gemini's two roles. Tool
// results travel as function responses in a user turn.
func toGenaiContents(contents []Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		switch c.Role {
		case RoleModel:
			content := &genai.Content{Role: genai.RoleModel}
			if c.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: c.Text})
			}
			for _, call := range c.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Args,
				}})
			}
			if len(content.Parts) > 0 {
				out = append(out, content)
			}
		case RoleTool:
			content := &genai.Content{Role: genai.RoleUser}
			for _, res := range c.ToolResults {
				part := genai.NewPartFromFunctionResponse(res.Name, res.Response)
				part.FunctionResponse.ID = res.CallID
				content.Parts = append(content.Parts, part)
			}
			if len(content.Parts) > 0 {
				out = append(out, content)
			}
		default:
			out = append(out, genai.NewContentFromText(c.Text, genai.RoleUser))
		}
	}
	return out
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	out := &Response{}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		case part.Text != "" && !part.Thought:
			text.WriteString(part.Text)
		}
	}
	out.Text = text.String()

	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
		}
	}
	return out, nil
}
