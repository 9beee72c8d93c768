package conversation

import (
	"fmt"

	"github.com/innomightlabs/krishna/pkg/logger"
)

// OverflowStrategy selects how history shrinks once the token budget is
// exceeded.
type OverflowStrategy string

const (
	DropOldest     OverflowStrategy = "drop_oldest"
	Summarize      OverflowStrategy = "summarize"
	TruncateMiddle OverflowStrategy = "truncate_middle"
)

// ParseOverflowStrategy maps a config string to a strategy, defaulting to
// drop-oldest.
func ParseOverflowStrategy(s string) OverflowStrategy {
	switch OverflowStrategy(s) {
	case Summarize, TruncateMiddle:
		return OverflowStrategy(s)
	default:
		return DropOldest
	}
}

// TokenCounter estimates the token cost of a message.
type TokenCounter func(msg Message) int

// SummarizerFunc condenses a batch of messages into one summary string.
type SummarizerFunc func(msgs []Message) (string, error)

// TokenUsage is a point-in-time snapshot of the budget.
type TokenUsage struct {
	TotalTokens     int
	AvailableTokens int
	MessageCount    int
}

// messageOverheadTokens approximates per-message framing cost on top of
// content and role.
const messageOverheadTokens = 4

// TokenAwareManager keeps a running token total and shrinks history via
// the configured overflow strategy whenever total + reserve would exceed
// the maximum. The newest message is never evicted, even when it alone
// exceeds the budget.
type TokenAwareManager struct {
	maxTokens     int
	reserveTokens int
	strategy      OverflowStrategy
	counter       TokenCounter
	summarizer    SummarizerFunc

	messages    []Message
	totalTokens int
}

// TokenAwareOption mutates construction-time settings.
type TokenAwareOption func(*TokenAwareManager)

// WithSummarizer installs the callback used by the summarize strategy.
func WithSummarizer(fn SummarizerFunc) TokenAwareOption {
	return func(m *TokenAwareManager) { m.summarizer = fn }
}

// WithReserveTokens overrides the default reserve of 500 tokens.
func WithReserveTokens(n int) TokenAwareOption {
	return func(m *TokenAwareManager) { m.reserveTokens = n }
}

func NewTokenAwareManager(maxTokens int, strategy OverflowStrategy, counter TokenCounter, opts ...TokenAwareOption) *TokenAwareManager {
	if maxTokens <= 0 {
		maxTokens = 120000
	}
	m := &TokenAwareManager{
		maxTokens:     maxTokens,
		reserveTokens: 500,
		strategy:      strategy,
		counter:       counter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// countTokens returns the cached token count when present, otherwise
// computes content + role + overhead via the pluggable counter.
func (m *TokenAwareManager) countTokens(msg Message) int {
	if msg.TokenCount > 0 {
		return msg.TokenCount
	}
	if m.counter != nil {
		return m.counter(msg)
	}
	// Rough heuristic: four characters per token.
	return (len(msg.Content)+len(msg.Role))/4 + messageOverheadTokens
}

func (m *TokenAwareManager) Add(msg Message) {
	tokens := m.countTokens(msg)
	if msg.TokenCount == 0 {
		msg.TokenCount = tokens
	}

	m.messages = append(m.messages, msg)
	m.totalTokens += tokens

	m.handleOverflow()
}

// Fetch returns the most recent windowSize messages, excluding system and
// tool roles.
func (m *TokenAwareManager) Fetch(windowSize int) []Message {
	filtered := make([]Message, 0, len(m.messages))
	for _, msg := range m.messages {
		if msg.Role == RoleSystem || msg.Role == RoleTool {
			continue
		}
		filtered = append(filtered, msg)
	}
	return tail(filtered, windowSize)
}

func (m *TokenAwareManager) Finalize() error {
	return nil
}

// Usage reports the tracked totals.
func (m *TokenAwareManager) Usage() TokenUsage {
	available := m.maxTokens - m.totalTokens - m.reserveTokens
	if available < 0 {
		available = 0
	}
	return TokenUsage{
		TotalTokens:     m.totalTokens,
		AvailableTokens: available,
		MessageCount:    len(m.messages),
	}
}

func (m *TokenAwareManager) handleOverflow() {
	if m.totalTokens+m.reserveTokens <= m.maxTokens {
		return
	}

	target := m.maxTokens - m.reserveTokens

	switch m.strategy {
	case Summarize:
		m.summarizeOldest(target)
	case TruncateMiddle:
		m.truncateMiddle(target)
	default:
		m.dropOldest(target)
	}

	m.recalculate()
}

// dropOldest pops from the front until under target. The newest message
// always survives; a single message larger than the whole budget is the
// documented edge case where the invariant total+reserve <= max cannot
// hold.
func (m *TokenAwareManager) dropOldest(target int) {
	for m.totalTokens > target && len(m.messages) > 1 {
		oldest := m.messages[0]
		m.messages = m.messages[1:]
		m.totalTokens -= m.countTokens(oldest)
	}
}

// summarizeOldest keeps the newest messages fitting half the target
// budget verbatim and replaces everything older with one system-role
// summary. Falls back to drop-oldest when no summarizer is configured,
// fewer than 4 messages exist, or the callback fails.
func (m *TokenAwareManager) summarizeOldest(target int) {
	if m.summarizer == nil || len(m.messages) < 4 {
		m.dropOldest(target)
		return
	}

	var keep, old []Message
	kept := 0
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		tokens := m.countTokens(msg)
		if kept+tokens < target/2 {
			keep = append([]Message{msg}, keep...)
			kept += tokens
		} else {
			old = append([]Message{msg}, old...)
		}
	}

	if len(old) == 0 {
		return
	}

	summary, err := m.summarizer(old)
	if err != nil {
		logger.WarnCF("conversation", "Summarizer failed, falling back to drop-oldest",
			map[string]interface{}{"error": err.Error()})
		m.dropOldest(target)
		return
	}

	summaryMsg := NewMessage(RoleSystem, fmt.Sprintf("[Conversation Summary]: %s", summary))
	summaryMsg.Metadata = map[string]interface{}{
		"type":             "summary",
		"summarized_count": len(old),
	}

	m.messages = append([]Message{summaryMsg}, keep...)
}

// truncateMiddle keeps the first two and last two messages. With four or
// fewer messages it falls back to drop-oldest.
func (m *TokenAwareManager) truncateMiddle(target int) {
	if len(m.messages) <= 4 {
		m.dropOldest(target)
		return
	}

	kept := make([]Message, 0, 4)
	kept = append(kept, m.messages[:2]...)
	kept = append(kept, m.messages[len(m.messages)-2:]...)
	m.messages = kept
}

// recalculate rebuilds the running total from the retained set so it is
// never left stale after an overflow pass.
func (m *TokenAwareManager) recalculate() {
	total := 0
	for i := range m.messages {
		total += m.countTokens(m.messages[i])
	}
	m.totalTokens = total
}

// Len reports the number of retained messages.
func (m *TokenAwareManager) Len() int {
	return len(m.messages)
}
