package providers

import "context"

// Usage carries token counters reported by the backend for one call.
type Usage struct {
	InputTokens  int `json:"prompt_tokens"`
	OutputTokens int `json:"completion_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ModelReply is one completed model turn. Content is the full reply
// text; any embedded action object is extracted downstream by the agent.
type ModelReply struct {
	Content string
	Usage   *Usage
}

// Provider is the model backend contract. The agent hands over one
// fully rendered prompt (instructions, tool catalog, history) per call
// and blocks until the reply is complete.
type Provider interface {
	Invoke(ctx context.Context, prompt string) (*ModelReply, error)
}
