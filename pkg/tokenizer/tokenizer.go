package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/innomightlabs/krishna/pkg/conversation"
	"github.com/innomightlabs/krishna/pkg/logger"
)

// fallbackEncoding is used when a model has no registered encoding.
const fallbackEncoding = "cl100k_base"

// NewCounter builds a conversation.TokenCounter for the given model.
// Counts cover the message content plus the role and a small fixed
// structural overhead, matching what chat completion endpoints bill.
// When the tokenizer cannot be initialized at all the counter degrades
// to a bytes/4 estimate so the conversation manager keeps working.
func NewCounter(model string) conversation.TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		logger.WarnCF("tokenizer", "Tokenizer unavailable, using byte estimate",
			map[string]interface{}{"model": model, "error": err.Error()})
		return estimateCounter
	}

	return func(msg conversation.Message) int {
		content := len(enc.Encode(msg.Content, nil, nil))
		role := len(enc.Encode(msg.Role, nil, nil))
		return content + role + messageOverhead
	}
}

const messageOverhead = 4

func estimateCounter(msg conversation.Message) int {
	return len(msg.Content)/4 + messageOverhead
}
