package provider

import (
	"context"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI wraps the official SDK's chat completions endpoint. Usage is not
// always populated by every OpenAI-compatible deployment, so the provider
// reports HandlesOwnMetrics() conservatively based on what the last
// response actually carried.
type OpenAI struct {
	client     openai.Client
	name       string
	model      string
	maxTokens  int
	inputCost  float64
	outputCost float64
}

// OpenAIConfig configures the provider from [ai_providers.openai].
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	InputCost  float64
	OutputCost float64
}

// NewOpenAI constructs the provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, &Error{Kind: ErrAuth, Provider: "openai", Err: errAPIKeyMissing("OPENAI_API_KEY")}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client:     openai.NewClient(opts...),
		name:       "openai",
		model:      model,
		maxTokens:  cfg.MaxTokens,
		inputCost:  cfg.InputCost,
		outputCost: cfg.OutputCost,
	}, nil
}

func (o *OpenAI) Name() string            { return o.name }
func (o *OpenAI) ModelName() string       { return o.model }
func (o *OpenAI) ContextSize() int        { return 128_000 }
func (o *OpenAI) HandlesOwnMetrics() bool { return true }

func (o *OpenAI) SendPrompt(ctx context.Context, prompt string, onChunk ChunkFunc) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.maxTokens))
	}

	if onChunk == nil {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, classifyOpenAIError(err, "openai")
		}
		return o.toResponse(resp), nil
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		onChunk(ChunkContent, delta)
	}
	if err := stream.Err(); err != nil {
		return nil, classifyOpenAIError(err, "openai")
	}
	return &Response{Text: text.String()}, nil
}

func (o *OpenAI) toResponse(resp *openai.ChatCompletion) *Response {
	r := &Response{}
	if len(resp.Choices) > 0 {
		r.Text = resp.Choices[0].Message.Content
	}
	in := int(resp.Usage.PromptTokens)
	out := int(resp.Usage.CompletionTokens)
	if in+out > 0 {
		r.Tokens = in + out
		r.Cost = float64(in)/1_000_000*o.inputCost + float64(out)/1_000_000*o.outputCost
	}
	return r
}

func classifyOpenAIError(err error, name string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return &Error{Kind: ErrRateLimit, Provider: name, Err: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return &Error{Kind: ErrAuth, Provider: name, Err: err}
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "dial"):
		return &Error{Kind: ErrNetwork, Provider: name, Err: err}
	default:
		return &Error{Kind: ErrBadResponse, Provider: name, Err: err}
	}
}

type apiKeyMissingError string

func (e apiKeyMissingError) Error() string { return string(e) + " not set" }

func errAPIKeyMissing(envVar string) error { return apiKeyMissingError(envVar) }
