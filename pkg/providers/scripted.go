package providers

import (
	"context"
	"fmt"
)

// ScriptedProvider replays a fixed sequence of replies. Once the script
// is exhausted it keeps returning the last reply, which makes iteration
// bound tests deterministic. Intended for tests and offline dry runs.
type ScriptedProvider struct {
	replies []string
	usage   Usage
	calls   int
}

func NewScriptedProvider(replies ...string) *ScriptedProvider {
	return &ScriptedProvider{
		replies: replies,
		usage:   Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func (p *ScriptedProvider) Invoke(ctx context.Context, prompt string) (*ModelReply, error) {
	if len(p.replies) == 0 {
		return nil, fmt.Errorf("scripted provider has no replies")
	}
	idx := p.calls
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	p.calls++
	usage := p.usage
	return &ModelReply{Content: p.replies[idx], Usage: &usage}, nil
}

// Calls reports how many times Invoke has been called.
func (p *ScriptedProvider) Calls() int {
	return p.calls
}
