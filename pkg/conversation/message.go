package conversation

import "time"

// Role identifies the author of a message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is one entry in a conversation log. Messages are immutable once
// appended, except TokenCount and Embedding which managers may fill lazily.
type Message struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	Embedding  []float64              `json:"embedding,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	TokenCount int                    `json:"token_count,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessage stamps a message with the current time.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
