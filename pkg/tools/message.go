package tools

import (
	"context"
	"fmt"
	"io"
	"os"
)

// SendMessageTool delivers a message directly to the user. The agent
// loop treats it as terminal output: the content is persisted as tool
// feedback but never re-surfaced as an intermediate chunk.
type SendMessageTool struct {
	out io.Writer
}

func NewSendMessageTool(out io.Writer) *SendMessageTool {
	if out == nil {
		out = os.Stdout
	}
	return &SendMessageTool{out: out}
}

func (t *SendMessageTool) Name() string {
	return "send_message"
}

func (t *SendMessageTool) Description() string {
	return "Sends a message to the user in markdown format"
}

func (t *SendMessageTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("content", String().Describe("The message content in markdown format")).
		Build()
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	content, ok := stringArg(args, "content")
	if !ok {
		return "", InvalidArgs("content is required")
	}
	fmt.Fprintln(t.out, content)
	return content, nil
}

// PrintMessageTool writes a message straight to the console. Treated the
// same way as send_message by the agent loop.
type PrintMessageTool struct {
	out io.Writer
}

func NewPrintMessageTool(out io.Writer) *PrintMessageTool {
	if out == nil {
		out = os.Stdout
	}
	return &PrintMessageTool{out: out}
}

func (t *PrintMessageTool) Name() string {
	return "print_message"
}

func (t *PrintMessageTool) Description() string {
	return "Prints a message to the console"
}

func (t *PrintMessageTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("content", String().Describe("The message content to print")).
		Build()
}

func (t *PrintMessageTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	content, ok := stringArg(args, "content")
	if !ok {
		return "", InvalidArgs("content is required")
	}
	fmt.Fprintln(t.out, content)
	return content, nil
}
