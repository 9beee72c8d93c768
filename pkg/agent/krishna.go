package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/innomightlabs/krishna/pkg/conversation"
	"github.com/innomightlabs/krishna/pkg/logger"
	"github.com/innomightlabs/krishna/pkg/providers"
	"github.com/innomightlabs/krishna/pkg/tools"
)

// MaxAgentLoops bounds the model/tool alternation for one request.
const MaxAgentLoops = 28

const baseInstructions = "You are Krishna, a sentient programming assistant. Use the available tools to fulfill the user's request."

// Fatal loop outcomes. Everything else becomes a history entry and the
// loop keeps going.
var (
	ErrIterationLimit  = errors.New("maximum tool iterations exceeded")
	ErrNonTextualReply = errors.New("model returned a non-textual response")
)

// Terminal send tools deliver their content to the user directly; their
// feedback is persisted but never re-surfaced as a stream chunk, and a
// call without a heartbeat ends the run.
var terminalSendTools = map[string]bool{
	"send_message":  true,
	"print_message": true,
}

// Krishna drives one user request to completion through repeated
// model and tool turns. It owns exactly one conversation manager; the
// pair is single-threaded and must not be shared across concurrent
// units of work.
type Krishna struct {
	provider     providers.Provider
	manager      conversation.Manager
	registry     *tools.Registry
	instructions string
	maxLoops     int
	window       int
	usage        *usageTracker
}

// Option adjusts a runtime at construction.
type Option func(*Krishna)

// WithMaxLoops overrides the iteration bound.
func WithMaxLoops(n int) Option {
	return func(k *Krishna) {
		if n > 0 {
			k.maxLoops = n
		}
	}
}

// WithWindow overrides the history window handed to the prompt.
func WithWindow(n int) Option {
	return func(k *Krishna) {
		if n > 0 {
			k.window = n
		}
	}
}

// WithInstructions replaces the base instruction block.
func WithInstructions(text string) Option {
	return func(k *Krishna) {
		if text != "" {
			k.instructions = text
		}
	}
}

// NewKrishna wires a runtime to its collaborators. The send and print
// message tools are registered when missing so the model always has a
// way to address the user.
func NewKrishna(provider providers.Provider, manager conversation.Manager, registry *tools.Registry, opts ...Option) *Krishna {
	if _, ok := registry.Get("print_message"); !ok {
		registry.Register(tools.NewPrintMessageTool(nil))
	}
	if _, ok := registry.Get("send_message"); !ok {
		registry.Register(tools.NewSendMessageTool(nil))
	}

	k := &Krishna{
		provider:     provider,
		manager:      manager,
		registry:     registry,
		instructions: baseInstructions,
		maxLoops:     MaxAgentLoops,
		window:       conversation.DefaultWindow,
		usage:        newUsageTracker(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Send starts the action loop for one user message and returns the
// stream of intermediate tool feedback followed by the final answer.
func (k *Krishna) Send(ctx context.Context, userMessage string) *Stream {
	stream := newStream()
	go k.run(ctx, stream, userMessage)
	return stream
}

// SendText runs the loop to completion, discarding intermediate chunks.
func (k *Krishna) SendText(ctx context.Context, userMessage string) (string, error) {
	return k.Send(ctx, userMessage).Drain()
}

// RunTask satisfies the subagent runner contract on top of SendText.
func (k *Krishna) RunTask(ctx context.Context, prompt string) (string, error) {
	return k.SendText(ctx, prompt)
}

// PersistConversation flushes the conversation log to storage.
func (k *Krishna) PersistConversation() error {
	return k.manager.Finalize()
}

// UsageTotals returns the running token counters for the session.
func (k *Krishna) UsageTotals() map[string]int { return k.usage.Totals() }

// LastUsage returns the token counters of the most recent model call.
func (k *Krishna) LastUsage() map[string]int { return k.usage.Last() }

func (k *Krishna) run(ctx context.Context, stream *Stream, userMessage string) {
	k.manager.Add(conversation.NewMessage(conversation.RoleUser, userMessage))

	turns := 0
	for {
		turns++
		if turns > k.maxLoops {
			failure := "Maximum tool iterations exceeded. Please refine the request."
			k.addSystem(failure)
			logger.ErrorCF("agent", "Iteration limit exceeded",
				map[string]interface{}{"max_loops": k.maxLoops})
			stream.emit(ctx, failure)
			stream.close(failure, ErrIterationLimit)
			return
		}

		reply, err := k.provider.Invoke(ctx, k.buildPrompt(userMessage))
		if err != nil {
			logger.ErrorCF("agent", "Model invocation failed",
				map[string]interface{}{"error": err.Error()})
			stream.close("", fmt.Errorf("model invocation failed: %w", err))
			return
		}
		k.usage.record(reply.Usage)

		if reply.Content == "" {
			failure := "Model returned a non-textual response. Unable to continue."
			k.addSystem(failure)
			stream.emit(ctx, failure)
			stream.close(failure, ErrNonTextualReply)
			return
		}

		k.manager.Add(conversation.NewMessage(conversation.RoleAssistant, reply.Content))

		payload, _, _, found := ExtractObject(reply.Content)
		if !found {
			// Plain text is the final answer.
			if err := k.manager.Finalize(); err != nil {
				logger.WarnCF("agent", "Failed to persist conversation",
					map[string]interface{}{"error": err.Error()})
			}
			stream.emit(ctx, reply.Content)
			stream.close(reply.Content, nil)
			return
		}

		action, err := ParseAction(payload)
		if errors.Is(err, ErrParamsNotObject) {
			k.addSystem("tool_call.tool_params must be an object containing the call arguments.")
			continue
		}
		if err != nil {
			k.addSystem("Action schema validation failed. Ensure the response follows the required format.")
			logger.WarnCF("agent", "Action validation failed",
				map[string]interface{}{"error": err.Error()})
			continue
		}

		name := action.ToolCall.ToolName
		tool, ok := k.registry.Get(name)
		if !ok {
			available := strings.Join(k.registry.List(), ", ")
			k.addSystem(fmt.Sprintf("Tool '%s' is unavailable. Choose one of: %s.", name, available))
			continue
		}

		if paramsEqualSchema(action.ToolCall.ToolParams, tool.Parameters()) {
			k.addSystem(fmt.Sprintf("Do not return the parameter schema for '%s'. Provide actual argument values.", name))
			continue
		}

		result, err := k.registry.Execute(ctx, name, action.ToolCall.ToolParams)
		if err != nil {
			kind := "Execution error"
			if tools.IsArgumentError(err) {
				kind = "Invalid arguments"
			}
			k.addToolFeedback(fmt.Sprintf("ERROR[%s]: %s: %v", name, kind, err))
			continue
		}

		feedback := result
		if feedback == "" {
			if value, ok := action.ToolCall.ToolParams["content"]; ok {
				feedback = fmt.Sprintf("%v", value)
			} else {
				feedback = "Tool execution completed."
			}
		}
		k.addToolFeedback(feedback)

		if terminalSendTools[name] {
			if !action.RequestHeartbeat {
				// The user-visible message has been delivered.
				if err := k.manager.Finalize(); err != nil {
					logger.WarnCF("agent", "Failed to persist conversation",
						map[string]interface{}{"error": err.Error()})
				}
				stream.close(feedback, nil)
				return
			}
			continue
		}

		// feedback is never empty here; the fallback chain above fills it.
		if !stream.emit(ctx, feedback) {
			stream.close("", ctx.Err())
			return
		}
	}
}

func (k *Krishna) addSystem(content string) {
	k.manager.Add(conversation.NewMessage(conversation.RoleSystem, content))
}

func (k *Krishna) addToolFeedback(content string) {
	k.manager.Add(conversation.NewMessage(conversation.RoleTool, content))
}

// paramsEqualSchema reports whether the model echoed the tool's own
// parameter schema instead of filling in argument values. Canonical
// JSON encoding sidesteps slice/map type differences between the
// decoded params and the declared schema.
func paramsEqualSchema(params, schema map[string]interface{}) bool {
	left, err := json.Marshal(params)
	if err != nil {
		return false
	}
	right, err := json.Marshal(schema)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

func (k *Krishna) buildPrompt(userMessage string) string {
	var b strings.Builder
	b.WriteString("<base_instructions>\n")
	b.WriteString(k.instructions)
	b.WriteString("\n\n<tooling>\nThe following tools can be invoked:\n")
	b.WriteString(k.renderToolCatalog())
	b.WriteString("\n</tooling>\n\n<response_format>\n")
	b.WriteString(`- Reply with a single JSON object only (no markdown fences).
- Shape the response exactly as: {"tool_call": {"tool_name": "<name>", "tool_params": {...}}, "request_heartbeat": <true|false>}.
- Include only the chosen tool name and the concrete argument values inside tool_params.
- Do NOT repeat tool descriptions or parameter schemas in the response.
- Set request_heartbeat to true only when you must immediately invoke another tool afterwards.
- Reply in plain text with no JSON object when delivering the final answer.`)
	b.WriteString("\n</response_format>\n\n")
	b.WriteString("Maintain concise reasoning internally; external messages should rely on the send/print message tools.\n")
	b.WriteString("</base_instructions>\n\n<conversation_history>\n")
	b.WriteString(renderHistory(k.manager.Fetch(k.window)))
	b.WriteString("\n</conversation_history>\n\n<user_message>\n")
	b.WriteString(userMessage)
	b.WriteString("\n</user_message>")
	return b.String()
}

func (k *Krishna) renderToolCatalog() string {
	names := k.registry.List()
	specs := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		tool, ok := k.registry.Get(name)
		if !ok {
			continue
		}
		specs = append(specs, map[string]interface{}{
			"tool_name":         tool.Name(),
			"description":       tool.Description(),
			"parameters_schema": tool.Parameters(),
		})
	}
	blob, err := json.MarshalIndent(specs, "", "    ")
	if err != nil {
		return "[]"
	}
	return string(blob)
}

// renderHistory serializes fetched messages one JSON object per line,
// matching what the model is told a history entry looks like.
func renderHistory(msgs []conversation.Message) string {
	if len(msgs) == 0 {
		return "[]"
	}
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		line, err := json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{Role: msg.Role, Content: msg.Content})
		if err != nil {
			continue
		}
		lines = append(lines, string(line))
	}
	return strings.Join(lines, "\n")
}
