package provider

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

// Gemini wraps Google's official genai SDK.
type Gemini struct {
	client     *genai.Client
	model      string
	inputCost  float64
	outputCost float64
}

// GeminiConfig configures the provider from [ai_providers.gemini].
type GeminiConfig struct {
	APIKey     string
	Model      string
	InputCost  float64
	OutputCost float64
}

// NewGemini constructs the provider.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, &Error{Kind: ErrAuth, Provider: "gemini", Err: errAPIKeyMissing("GEMINI_API_KEY")}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Provider: "gemini", Err: err}
	}

	return &Gemini{client: client, model: model, inputCost: cfg.InputCost, outputCost: cfg.OutputCost}, nil
}

func (g *Gemini) Name() string            { return "gemini" }
func (g *Gemini) ModelName() string       { return g.model }
func (g *Gemini) ContextSize() int        { return 1_000_000 }
func (g *Gemini) HandlesOwnMetrics() bool { return true }

func (g *Gemini) SendPrompt(ctx context.Context, prompt string, onChunk ChunkFunc) (*Response, error) {
	if onChunk == nil {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			return nil, classifyGeminiError(err)
		}
		return g.toResponse(resp), nil
	}

	var text strings.Builder
	var last *genai.GenerateContentResponse
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), nil) {
		if err != nil {
			return nil, classifyGeminiError(err)
		}
		chunk := resp.Text()
		if chunk != "" {
			text.WriteString(chunk)
			onChunk(ChunkContent, chunk)
		}
		last = resp
	}

	out := &Response{Text: text.String()}
	if last != nil && last.UsageMetadata != nil {
		in := int(last.UsageMetadata.PromptTokenCount)
		completion := int(last.UsageMetadata.CandidatesTokenCount)
		out.Tokens = in + completion
		out.Cost = float64(in)/1_000_000*g.inputCost + float64(completion)/1_000_000*g.outputCost
	}
	return out, nil
}

func (g *Gemini) toResponse(resp *genai.GenerateContentResponse) *Response {
	r := &Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		in := int(resp.UsageMetadata.PromptTokenCount)
		out := int(resp.UsageMetadata.CandidatesTokenCount)
		r.Tokens = in + out
		r.Cost = float64(in)/1_000_000*g.inputCost + float64(out)/1_000_000*g.outputCost
	}
	return r
}

func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted"):
		return &Error{Kind: ErrRateLimit, Provider: "gemini", Err: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "permission_denied"):
		return &Error{Kind: ErrAuth, Provider: "gemini", Err: err}
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout"):
		return &Error{Kind: ErrNetwork, Provider: "gemini", Err: err}
	default:
		return &Error{Kind: ErrBadResponse, Provider: "gemini", Err: err}
	}
}
