package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cliengineer/cliengineer/internal/config"
)

// envVar maps a provider name to the environment variable that carries
// its API key. Ollama intentionally has no entry: it uses none.
var envVar = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// FromConfig realizes the single enabled [ai_providers.<name>] entry as a
// Provider, or the deterministic Local provider when none is enabled.
// ctx is only used for providers whose SDK client construction requires
// one (currently Gemini).
func FromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	name, pc, ok := config.EnabledProvider(cfg)
	if !ok {
		return NewLocal(), nil
	}

	switch name {
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			APIKey:     os.Getenv(envVar["anthropic"]),
			Model:      pc.Model,
			MaxTokens:  pc.MaxTokens,
			InputCost:  pc.CostPer1MInputTokens,
			OutputCost: pc.CostPer1MOutputTokens,
		})
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:     os.Getenv(envVar["openai"]),
			Model:      pc.Model,
			BaseURL:    pc.BaseURL,
			MaxTokens:  pc.MaxTokens,
			InputCost:  pc.CostPer1MInputTokens,
			OutputCost: pc.CostPer1MOutputTokens,
		})
	case "openrouter":
		return NewOpenRouter(OpenAIConfig{
			APIKey:     os.Getenv(envVar["openrouter"]),
			Model:      pc.Model,
			MaxTokens:  pc.MaxTokens,
			InputCost:  pc.CostPer1MInputTokens,
			OutputCost: pc.CostPer1MOutputTokens,
		})
	case "gemini":
		return NewGemini(ctx, GeminiConfig{
			APIKey:     os.Getenv(envVar["gemini"]),
			Model:      pc.Model,
			InputCost:  pc.CostPer1MInputTokens,
			OutputCost: pc.CostPer1MOutputTokens,
		})
	case "ollama":
		return NewOllama(OllamaConfig{BaseURL: pc.BaseURL, Model: pc.Model}), nil
	default:
		return nil, fmt.Errorf("unknown ai_providers entry %q", name)
	}
}
