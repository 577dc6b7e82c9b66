package provider

import (
	"context"
	"fmt"
	"strings"
)

// Local is the deterministic fallback provider used when no vendor is
// enabled: it echoes canned plans so end-to-end behavior is reproducible
// in tests. Extended from a bare echo into a small substring-keyed
// canned-response table so it can drive a believable run once that
// table is filled.
type Local struct {
	// Responses maps a substring of the prompt to the canned reply to
	// return when that substring is found. Checked in insertion order;
	// the first match wins. If none match, Echo is used.
	Responses []CannedResponse
}

// CannedResponse pairs a prompt-matching substring with the fixed reply
// to return for it.
type CannedResponse struct {
	WhenContains string
	Reply        string
}

// NewLocal creates a Local provider with an empty Responses table, so
// every prompt gets the echo reply; no canned plan, artifact, or review
// reply is built in.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Name() string              { return "local" }
func (l *Local) ModelName() string         { return "local-echo" }
func (l *Local) ContextSize() int          { return 100_000 }
func (l *Local) HandlesOwnMetrics() bool   { return false }

func (l *Local) SendPrompt(ctx context.Context, prompt string, onChunk ChunkFunc) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for _, cr := range l.Responses {
		if strings.Contains(prompt, cr.WhenContains) {
			if onChunk != nil {
				onChunk(ChunkContent, cr.Reply)
			}
			return &Response{Text: cr.Reply}, nil
		}
	}

	reply := fmt.Sprintf("Echo: %s", prompt)
	if onChunk != nil {
		onChunk(ChunkContent, reply)
	}
	return &Response{Text: reply}, nil
}
