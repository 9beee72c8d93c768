package agent

import (
	"sync"

	"github.com/innomightlabs/krishna/pkg/providers"
)

// usageTracker accumulates token counters across model calls: running
// session totals plus the most recent call. Observability only, never
// correctness-bearing.
type usageTracker struct {
	mu     sync.Mutex
	totals map[string]int
	last   map[string]int
}

func newUsageTracker() *usageTracker {
	return &usageTracker{
		totals: map[string]int{"input_tokens": 0, "output_tokens": 0, "total_tokens": 0},
		last:   map[string]int{"input_tokens": 0, "output_tokens": 0, "total_tokens": 0},
	}
}

func (u *usageTracker) record(usage *providers.Usage) {
	if usage == nil {
		return
	}
	total := usage.TotalTokens
	if total == 0 {
		total = usage.InputTokens + usage.OutputTokens
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.last = map[string]int{
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"total_tokens":  total,
	}
	u.totals["input_tokens"] += usage.InputTokens
	u.totals["output_tokens"] += usage.OutputTokens
	u.totals["total_tokens"] += total
}

func (u *usageTracker) Totals() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return copyCounters(u.totals)
}

func (u *usageTracker) Last() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return copyCounters(u.last)
}

func copyCounters(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
