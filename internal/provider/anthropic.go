package provider

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicContextWindows is a small, hand-maintained table; unknown models
// fall back to defaultContextWindow.
var anthropicContextWindows = map[string]int{
	"claude-3-5-sonnet-20241022": 200_000,
	"claude-3-5-haiku-20241022":  200_000,
	"claude-3-opus-20240229":     200_000,
}

const (
	defaultAnthropicModel      = "claude-3-5-sonnet-20241022"
	defaultAnthropicMaxTokens  = 4096
	defaultContextWindow       = 200_000
)

// Anthropic wraps the anthropic-sdk-go client directly rather than a
// bare HTTP client, since that SDK covers the vendor's API surface
// cleanly.
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	inputCost   float64 // cost per 1M input tokens
	outputCost  float64
}

// AnthropicConfig configures the provider from the [ai_providers.anthropic]
// table.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	InputCost   float64
	OutputCost  float64
}

// NewAnthropic constructs the provider. The client never retries
// internally; retries are the LLM manager's job.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, &Error{Kind: ErrAuth, Provider: "anthropic", Err: fmt.Errorf("ANTHROPIC_API_KEY not set")}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &Anthropic{
		client:     anthropic.NewClient(option.WithAPIKey(key), option.WithMaxRetries(0)),
		model:      model,
		maxTokens:  maxTokens,
		inputCost:  cfg.InputCost,
		outputCost: cfg.OutputCost,
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }
func (a *Anthropic) ModelName() string { return a.model }

func (a *Anthropic) ContextSize() int {
	if w, ok := anthropicContextWindows[a.model]; ok {
		return w
	}
	return defaultContextWindow
}

// HandlesOwnMetrics is true: the Anthropic API reports input/output token
// usage on every response, so the LLM manager does not need to estimate.
func (a *Anthropic) HandlesOwnMetrics() bool { return true }

func (a *Anthropic) SendPrompt(ctx context.Context, prompt string, onChunk ChunkFunc) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	if onChunk == nil {
		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return nil, classifyAnthropicError(err)
		}
		return a.toResponse(msg), nil
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	if stream == nil {
		return nil, &Error{Kind: ErrBadResponse, Provider: "anthropic", Err: fmt.Errorf("nil stream")}
	}
	defer stream.Close()

	var text strings.Builder
	var finalUsage anthropic.MessageDeltaUsage
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				text.WriteString(delta.Text)
				onChunk(ChunkContent, delta.Text)
			}
		case anthropic.MessageDeltaEvent:
			finalUsage = ev.Usage
		}
	}
	if err := stream.Err(); err != nil {
		return nil, classifyAnthropicError(err)
	}

	resp := &Response{Text: text.String()}
	total := int(finalUsage.InputTokens + finalUsage.OutputTokens)
	if total > 0 {
		resp.Tokens = total
		resp.Cost = a.cost(int(finalUsage.InputTokens), int(finalUsage.OutputTokens))
	}
	return resp, nil
}

func (a *Anthropic) toResponse(msg *anthropic.Message) *Response {
	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &Response{
		Text:   text.String(),
		Tokens: in + out,
		Cost:   a.cost(in, out),
	}
}

func (a *Anthropic) cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*a.inputCost + float64(outputTokens)/1_000_000*a.outputCost
}

func classifyAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate limit"):
		return &Error{Kind: ErrRateLimit, Provider: "anthropic", Err: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return &Error{Kind: ErrAuth, Provider: "anthropic", Err: err}
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout"):
		return &Error{Kind: ErrNetwork, Provider: "anthropic", Err: err}
	default:
		return &Error{Kind: ErrBadResponse, Provider: "anthropic", Err: err}
	}
}
