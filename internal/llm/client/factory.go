package llmclient

import (
	"context"
	"fmt"
	"strings"

	"f2b/internal/config"
	"f2b/internal/llm"
)

// New builds the backend named by provider from configuration.
func New(ctx context.Context, provider string, cfg config.LLMConfig) (llm.CompletionProvider, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "groq":
		return NewOpenAICompatClient("groq", cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GroqModel, cfg.Timeout)
	case "openai":
		return NewOpenAICompatClient("openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Timeout)
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:         cfg.AnthropicAPIKey,
			BaseURL:        cfg.AnthropicBaseURL,
			Model:          cfg.AnthropicModel,
			Version:        cfg.AnthropicVersion,
			MaxTokens:      cfg.AnthropicMaxTokens,
			ThinkingBudget: cfg.AnthropicThinkingBudget,
			Timeout:        cfg.Timeout,
		})
	case "gemini":
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "fake":
		return llm.NewFakeText("{}"), nil
	default:
		return nil, fmt.Errorf("llmclient: unknown provider %q", provider)
	}
}
