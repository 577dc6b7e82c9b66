package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"
const defaultOllamaModel = "llama3"

// Ollama talks to a local Ollama daemon over its HTTP API. Ollama needs
// no provider environment variable, since a local daemon has no API key.
// None of the vendor SDKs wired elsewhere (anthropic-sdk-go, openai-go,
// genai) speak Ollama's wire format, so this is the one provider
// implemented directly on net/http; see DESIGN.md.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// OllamaConfig configures the provider from [ai_providers.ollama].
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// NewOllama constructs the provider.
func NewOllama(cfg OllamaConfig) *Ollama {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{baseURL: baseURL, model: model, client: &http.Client{Timeout: 5 * time.Minute}}
}

func (o *Ollama) Name() string            { return "ollama" }
func (o *Ollama) ModelName() string       { return o.model }
func (o *Ollama) ContextSize() int        { return 8_192 }
func (o *Ollama) HandlesOwnMetrics() bool { return false }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *Ollama) SendPrompt(ctx context.Context, prompt string, onChunk ChunkFunc) (*Response, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: o.model, Prompt: prompt, Stream: true})
	if err != nil {
		return nil, &Error{Kind: ErrBadResponse, Provider: "ollama", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Provider: "ollama", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: ErrBadResponse, Provider: "ollama", Err: fmt.Errorf("ollama returned status %d", resp.StatusCode)}
	}

	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Response != "" {
			text.WriteString(chunk.Response)
			if onChunk != nil {
				onChunk(ChunkContent, chunk.Response)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Kind: ErrNetwork, Provider: "ollama", Err: err}
	}

	return &Response{Text: text.String()}, nil
}
