package provider

import "strings"

const openRouterBaseURL = "https://openrouter.ai/api/v1"
const defaultOpenRouterModel = "openrouter/auto"

// NewOpenRouter builds an OpenAI-compatible provider pointed at
// OpenRouter. OpenRouter speaks the OpenAI chat-completions wire format,
// so it is realized as an OpenAI client with a different BaseURL rather
// than a bespoke SDK, since no OpenRouter-specific Go client exists.
func NewOpenRouter(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultOpenRouterModel
	}
	cfg.BaseURL = openRouterBaseURL
	o, err := NewOpenAI(cfg)
	if err != nil {
		if pe, ok := err.(*Error); ok {
			pe.Provider = "openrouter"
		}
		return nil, err
	}
	o.name = "openrouter"
	return o, nil
}
