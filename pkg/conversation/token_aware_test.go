package conversation

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// wordCounter charges one token per whitespace-separated word plus the
// fixed per-message overhead, which keeps test arithmetic readable.
func wordCounter(msg Message) int {
	return len(strings.Fields(msg.Content)) + messageOverheadTokens
}

func msgOf(role string, words int) Message {
	return NewMessage(role, strings.TrimSpace(strings.Repeat("w ", words)))
}

func retainedTotal(m *TokenAwareManager) int {
	total := 0
	for _, msg := range m.messages {
		total += m.countTokens(msg)
	}
	return total
}

func TestTokenAware_AccountingAfterOverflow(t *testing.T) {
	m := NewTokenAwareManager(60, DropOldest, wordCounter, WithReserveTokens(10))

	for i := 0; i < 10; i++ {
		m.Add(msgOf(RoleUser, 10)) // 14 tokens each
	}

	usage := m.Usage()
	if usage.TotalTokens != retainedTotal(m) {
		t.Errorf("tracked total %d != recomputed %d", usage.TotalTokens, retainedTotal(m))
	}
	if usage.TotalTokens+10 > 60 {
		t.Errorf("total %d + reserve exceeds max", usage.TotalTokens)
	}
}

func TestTokenAware_NewestMessageSurvives(t *testing.T) {
	m := NewTokenAwareManager(20, DropOldest, wordCounter, WithReserveTokens(5))

	m.Add(msgOf(RoleUser, 5))
	huge := NewMessage(RoleUser, strings.TrimSpace(strings.Repeat("w ", 100)))
	m.Add(huge)

	if m.Len() != 1 {
		t.Fatalf("retained %d messages, want only the newest", m.Len())
	}
	if m.messages[0].Content != huge.Content {
		t.Error("newest message was evicted")
	}
	// Documented edge case: a single oversized message may exceed budget.
	if got := m.Usage().TotalTokens; got != 104 {
		t.Errorf("total = %d, want 104", got)
	}
}

func TestTokenAware_TruncateMiddle(t *testing.T) {
	m := NewTokenAwareManager(100, TruncateMiddle, wordCounter, WithReserveTokens(10))

	for i := 0; i < 7; i++ {
		m.Add(NewMessage(RoleUser, fmt.Sprintf("message number %d padding padding padding padding padding padding padding", i)))
	}

	if m.Len() != 4 {
		t.Fatalf("retained %d messages, want 4", m.Len())
	}
	if !strings.Contains(m.messages[0].Content, "number 0") ||
		!strings.Contains(m.messages[1].Content, "number 1") {
		t.Error("first two messages not preserved")
	}
	if !strings.Contains(m.messages[2].Content, "number 5") ||
		!strings.Contains(m.messages[3].Content, "number 6") {
		t.Error("last two messages not preserved")
	}
	if m.Usage().TotalTokens != retainedTotal(m) {
		t.Error("running total stale after truncate-middle pass")
	}
}

func TestTokenAware_TruncateMiddleFallsBackWhenFew(t *testing.T) {
	m := NewTokenAwareManager(30, TruncateMiddle, wordCounter, WithReserveTokens(5))

	m.Add(msgOf(RoleUser, 10))
	m.Add(msgOf(RoleAssistant, 10))
	m.Add(msgOf(RoleUser, 10)) // overflow with only 3 messages

	// Fallback is drop-oldest, not first2+last2.
	if m.Len() >= 3 {
		t.Errorf("retained %d messages, expected drop-oldest fallback", m.Len())
	}
}

func TestTokenAware_SummarizeReplacesOldHalf(t *testing.T) {
	summarized := 0
	summarizer := func(msgs []Message) (string, error) {
		summarized = len(msgs)
		return "the early conversation", nil
	}

	m := NewTokenAwareManager(80, Summarize, wordCounter,
		WithReserveTokens(10), WithSummarizer(summarizer))

	for i := 0; i < 8; i++ {
		m.Add(msgOf(RoleUser, 8)) // 12 tokens each
	}

	if summarized == 0 {
		t.Fatal("summarizer was never invoked")
	}
	first := m.messages[0]
	if first.Role != RoleSystem || !strings.Contains(first.Content, "[Conversation Summary]:") {
		t.Errorf("expected leading summary message, got {%s %q}", first.Role, first.Content)
	}
	if m.Usage().TotalTokens != retainedTotal(m) {
		t.Error("running total stale after summarize pass")
	}
}

func TestTokenAware_SummarizeFallsBackOnError(t *testing.T) {
	summarizer := func(msgs []Message) (string, error) {
		return "", errors.New("model unavailable")
	}

	m := NewTokenAwareManager(60, Summarize, wordCounter,
		WithReserveTokens(10), WithSummarizer(summarizer))

	for i := 0; i < 8; i++ {
		m.Add(msgOf(RoleUser, 8))
	}

	for _, msg := range m.messages {
		if msg.Role == RoleSystem {
			t.Error("summary message present despite summarizer failure")
		}
	}
	if got := m.Usage().TotalTokens; got+10 > 60 {
		t.Errorf("total %d + reserve exceeds max after fallback", got)
	}
}

func TestTokenAware_SummarizeFallsBackWithoutCallback(t *testing.T) {
	m := NewTokenAwareManager(60, Summarize, wordCounter, WithReserveTokens(10))

	for i := 0; i < 8; i++ {
		m.Add(msgOf(RoleUser, 8))
	}

	if got := m.Usage().TotalTokens; got+10 > 60 {
		t.Errorf("total %d + reserve exceeds max without summarizer", got)
	}
}

func TestTokenAware_FetchExcludesSystemAndTool(t *testing.T) {
	m := NewTokenAwareManager(1000, DropOldest, wordCounter)

	m.Add(NewMessage(RoleUser, "question"))
	m.Add(NewMessage(RoleSystem, "corrective"))
	m.Add(NewMessage(RoleTool, "feedback"))
	m.Add(NewMessage(RoleAssistant, "answer"))

	got := m.Fetch(10)
	if len(got) != 2 {
		t.Fatalf("fetched %d messages, want 2", len(got))
	}
	if got[0].Role != RoleUser || got[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", got[0].Role, got[1].Role)
	}
}

func TestTokenAware_CachesTokenCount(t *testing.T) {
	m := NewTokenAwareManager(1000, DropOldest, wordCounter)

	m.Add(NewMessage(RoleUser, "three little words"))
	if got := m.messages[0].TokenCount; got != 3+messageOverheadTokens {
		t.Errorf("TokenCount = %d, want %d", got, 3+messageOverheadTokens)
	}
}
