// Package contextmgr holds per-conversation message histories and
// compresses them via the LLM manager when usage crosses a configured
// threshold.
package contextmgr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cliengineer/cliengineer/internal/events"
	"github.com/cliengineer/cliengineer/internal/llmmanager"
	"github.com/cliengineer/cliengineer/internal/logger"
)

// Role values for Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation: {role, content, token_estimate}.
type Message struct {
	Role          string
	Content       string
	TokenEstimate int

	// IsSummary marks a synthetic assistant message produced by
	// compression, distinguishing it from real LLM output.
	IsSummary bool
}

// ConversationContext is the full message history for one conversation.
type ConversationContext struct {
	ID          string
	Messages    []Message
	TotalTokens int
	Metadata    map[string]string
}

// recentWindowFraction is the default fraction of max_tokens the
// "recent window" of the compression algorithm may occupy.
const recentWindowFraction = 0.25

// Manager holds per-conversation message histories and compresses them
// once usage crosses the configured threshold.
type Manager struct {
	mu                   sync.Mutex // guards the contexts map itself
	contexts             map[string]*ConversationContext
	locks                map[string]*sync.Mutex // one per context id, serializes add/get

	llm                  *llmmanager.Manager
	bus                  *events.Bus
	maxTokens            int
	compressionThreshold float64
}

// New creates a Manager. llm is used to produce compression summaries;
// bus receives ContextUsage/ContextCompression events.
func New(llm *llmmanager.Manager, bus *events.Bus, maxTokens int, compressionThreshold float64) *Manager {
	return &Manager{
		contexts:             make(map[string]*ConversationContext),
		locks:                make(map[string]*sync.Mutex),
		llm:                  llm,
		bus:                  bus,
		maxTokens:            maxTokens,
		compressionThreshold: compressionThreshold,
	}
}

// CreateContext allocates a fresh context id; emits no event.
func (m *Manager) CreateContext(metadata map[string]string) string {
	id := uuid.New().String()
	m.mu.Lock()
	m.contexts[id] = &ConversationContext{ID: id, Metadata: metadata}
	m.locks[id] = &sync.Mutex{}
	m.mu.Unlock()
	return id
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) get(id string) *ConversationContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contexts[id]
}

// AddMessage appends a message, recomputes total_tokens, and, if usage
// crosses the compression threshold and role != system, compresses
// before returning. The per-context lock makes a concurrent AddMessage
// for the same id wait for an in-flight compression.
func (m *Manager) AddMessage(ctx context.Context, id, role, content string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	cc := m.get(id)
	if cc == nil {
		return fmt.Errorf("context %s not found", id)
	}

	msg := Message{Role: role, Content: content, TokenEstimate: estimateTokens(content)}
	cc.Messages = append(cc.Messages, msg)
	cc.TotalTokens += msg.TokenEstimate

	if role != RoleSystem && m.maxTokens > 0 && float64(cc.TotalTokens)/float64(m.maxTokens) >= m.compressionThreshold {
		if err := m.compress(ctx, cc); err != nil {
			logger.Warn("contextmgr: compression failed for %s: %v", id, err)
		}
	}

	m.emitUsage(cc)
	return nil
}

func (m *Manager) emitUsage(cc *ConversationContext) {
	if m.bus == nil {
		return
	}
	pct := 0.0
	if m.maxTokens > 0 {
		pct = float64(cc.TotalTokens) / float64(m.maxTokens)
	}
	m.bus.Emit(events.Event{
		Kind:         events.KindContextUsage,
		ContextID:    cc.ID,
		ContextUsed:  cc.TotalTokens,
		ContextTotal: m.maxTokens,
		ContextPct:   pct,
	})
}

// GetMessages returns messages in order. If budget > 0, it returns the
// longest suffix of non-system messages whose token sum <= budget minus
// the system-message token sum, prepended by all system messages.
func (m *Manager) GetMessages(id string, budget int) []Message {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	cc := m.get(id)
	if cc == nil {
		return nil
	}
	if budget <= 0 {
		out := make([]Message, len(cc.Messages))
		copy(out, cc.Messages)
		return out
	}

	var system []Message
	var rest []Message
	systemTokens := 0
	for _, msg := range cc.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
			systemTokens += msg.TokenEstimate
		} else {
			rest = append(rest, msg)
		}
	}

	remaining := budget - systemTokens
	var suffix []Message
	sum := 0
	for i := len(rest) - 1; i >= 0; i-- {
		if sum+rest[i].TokenEstimate > remaining {
			break
		}
		sum += rest[i].TokenEstimate
		suffix = append([]Message{rest[i]}, suffix...)
	}

	return append(system, suffix...)
}

// compress summarizes the non-system history older than the recent
// window (the newest messages whose token sum fits recentWindowFraction
// of max_tokens) into a single digest message, keeping all system
// messages and that recent window verbatim. Caller must hold the
// per-context lock.
func (m *Manager) compress(ctx context.Context, cc *ConversationContext) error {
	var system, rest []Message
	for _, msg := range cc.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	recentBudget := int(float64(m.maxTokens) * recentWindowFraction)
	recentStart := len(rest)
	sum := 0
	for recentStart > 0 {
		next := rest[recentStart-1].TokenEstimate
		if sum+next > recentBudget {
			break
		}
		sum += next
		recentStart--
	}

	middle := rest[:recentStart]
	recent := rest[recentStart:]
	if len(middle) == 0 {
		return nil // nothing compressible
	}

	originalSize := cc.TotalTokens
	digest, err := m.summarize(ctx, middle)
	if err != nil {
		return err
	}

	summaryMsg := Message{Role: RoleAssistant, Content: digest, TokenEstimate: estimateTokens(digest), IsSummary: true}

	newMessages := make([]Message, 0, len(system)+1+len(recent))
	newMessages = append(newMessages, system...)
	newMessages = append(newMessages, summaryMsg)
	newMessages = append(newMessages, recent...)

	cc.Messages = newMessages
	cc.TotalTokens = sumTokens(newMessages)

	if m.bus != nil {
		m.bus.Emit(events.Event{
			Kind:           events.KindContextCompression,
			ContextID:      cc.ID,
			OriginalSize:   originalSize,
			CompressedSize: cc.TotalTokens,
		})
	}
	return nil
}

func (m *Manager) summarize(ctx context.Context, middle []Message) (string, error) {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation excerpt into a concise bulleted digest. ")
	sb.WriteString("Preserve concrete decisions made, file names mentioned, and any unresolved questions. ")
	sb.WriteString("Do not add commentary beyond the digest.\n\n")
	for _, msg := range middle {
		fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, msg.Content)
	}

	if m.llm == nil {
		return "", fmt.Errorf("no LLM manager configured for compression")
	}
	return m.llm.SendPrompt(ctx, sb.String())
}

func sumTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += m.TokenEstimate
	}
	return total
}

// estimateTokens is the chars/4 heuristic.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
