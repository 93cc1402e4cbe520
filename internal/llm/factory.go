package llm

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Provider names a model backend.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
)

// ResolveModel decides which backend serves name. Names with an
// "openrouter/" prefix or containing "/" go to OpenRouter; the prefix is
// stripped. Everything else is a Gemini model.
func ResolveModel(name string) (Provider, string) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(strings.ToLower(name), "openrouter/") {
		return ProviderOpenRouter, name[len("openrouter/"):]
	}
	if strings.Contains(name, "/") {
		return ProviderOpenRouter, name
	}
	return ProviderGemini, name
}

// Keys holds the provider credentials.
type Keys struct {
	GoogleAPIKey     string
	OpenRouterAPIKey string
}

// New builds the Model for name.
func New(ctx context.Context, name string, keys Keys, logger *zap.Logger) (Model, error) {
	provider, model := ResolveModel(name)
	logger.Info("using model", zap.String("provider", string(provider)), zap.String("model", model))

	switch provider {
	case ProviderOpenRouter:
		return NewOpenRouterModel(OpenRouterConfig{APIKey: keys.OpenRouterAPIKey, Model: model}, logger)
	default:
		return NewGeminiModel(ctx, keys.GoogleAPIKey, model, logger)
	}
}
