// Package llmmanager holds the enabled provider and wraps every call
// with event emission, cost accounting, and the rate-limit retry
// policy. Providers never retry internally; this is where that policy
// lives.
package llmmanager

import (
	"context"
	"math/rand"
	"time"

	"github.com/cliengineer/cliengineer/internal/events"
	"github.com/cliengineer/cliengineer/internal/provider"
)

// Retry policy constants: base 1s, factor 2, max 3 attempts, jitter
// ±25%.
const (
	RetryBase       = 1 * time.Second
	RetryFactor     = 2.0
	RetryMaxAttempts = 3
	RetryJitter     = 0.25
)

// Manager wraps a provider with retry, accounting, and eventing.
type Manager struct {
	provider provider.Provider
	bus      *events.Bus

	// costPer1MInput and costPer1MOutput are the configured per-provider
	// rates used to derive cost when the provider itself doesn't report
	// one (HandlesOwnMetrics() == false, true for Ollama and Local).
	costPer1MInput  float64
	costPer1MOutput float64

	// sleep is overridable in tests to avoid real delays.
	sleep func(time.Duration)
	// rand01 returns a float in [0,1); overridable in tests for
	// deterministic jitter.
	rand01 func() float64
}

// New creates a Manager bound to provider p, emitting events on bus. bus
// may be nil, in which case events are simply not emitted. costPer1MInput
// and costPer1MOutput are the configured per-million-token rates for p;
// they're only consulted when p doesn't report its own cost.
func New(p provider.Provider, bus *events.Bus, costPer1MInput, costPer1MOutput float64) *Manager {
	return &Manager{
		provider:        p,
		bus:             bus,
		costPer1MInput:  costPer1MInput,
		costPer1MOutput: costPer1MOutput,
		sleep:           time.Sleep,
		rand01:          rand.Float64,
	}
}

// ContextSize exposes the provider's context window for planners and the
// context manager to budget prompts.
func (m *Manager) ContextSize() int { return m.provider.ContextSize() }

// ProviderName returns the underlying provider's name, for event fields.
func (m *Manager) ProviderName() string { return m.provider.Name() }

func (m *Manager) emit(e events.Event) {
	if m.bus != nil {
		m.bus.Emit(e)
	}
}

// SendPrompt sends a prompt through the retry policy (exponential
// backoff, base 1s, factor 2, 3 attempts max, jitter ±25%) on RateLimit
// errors. Non-RateLimit ProviderErrors are surfaced immediately after a
// single APIError event.
func (m *Manager) SendPrompt(ctx context.Context, prompt string) (string, error) {
	return m.SendPromptStreaming(ctx, prompt, nil)
}

// SendPromptStreaming is SendPrompt with an optional onChunk callback
// relayed as APICallProgress events.
func (m *Manager) SendPromptStreaming(ctx context.Context, prompt string, onChunk provider.ChunkFunc) (string, error) {
	name := m.provider.Name()
	model := m.provider.ModelName()

	var lastErr error
	for attempt := 1; attempt <= RetryMaxAttempts; attempt++ {
		m.emit(events.Event{Kind: events.KindAPICallStarted, Provider: name, Model: model})

		relay := func(kind provider.ChunkKind, text string) {
			ck := events.ChunkContent
			if kind == provider.ChunkReasoning {
				ck = events.ChunkReasoning
			}
			m.emit(events.Event{Kind: events.KindAPICallProgress, Provider: name, Model: model, Chunk: text, ChunkOf: ck})
			if onChunk != nil {
				onChunk(kind, text)
			}
		}

		resp, err := m.provider.SendPrompt(ctx, prompt, relay)
		if err == nil {
			tokens, cost := resp.Tokens, resp.Cost
			if !m.provider.HandlesOwnMetrics() {
				inTokens := provider.EstimateTokens(prompt)
				outTokens := provider.EstimateTokens(resp.Text)
				tokens = inTokens + outTokens
				cost = float64(inTokens)/1e6*m.costPer1MInput + float64(outTokens)/1e6*m.costPer1MOutput
			}
			m.emit(events.Event{Kind: events.KindAPICallCompleted, Provider: name, Model: model, Tokens: tokens, Cost: cost})
			return resp.Text, nil
		}

		lastErr = err
		m.emit(events.Event{Kind: events.KindAPIError, Provider: name, Model: model, Err: err})

		if !provider.IsRateLimit(err) || attempt == RetryMaxAttempts {
			return "", err
		}

		m.sleep(m.backoff(attempt))
	}

	return "", lastErr
}

func (m *Manager) backoff(attempt int) time.Duration {
	base := float64(RetryBase) * pow(RetryFactor, attempt-1)
	jitterRange := base * RetryJitter
	// Uniform in [base-jitterRange, base+jitterRange].
	offset := (m.rand01()*2 - 1) * jitterRange
	d := time.Duration(base + offset)
	if d < 0 {
		d = 0
	}
	return d
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
