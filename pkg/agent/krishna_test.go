package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/innomightlabs/krishna/pkg/conversation"
	"github.com/innomightlabs/krishna/pkg/providers"
	"github.com/innomightlabs/krishna/pkg/tools"
)

func addTool() tools.Tool {
	schema := tools.NewObject().
		Prop("a", tools.Integer()).
		Prop("b", tools.Integer()).
		Build()
	return tools.NewFuncTool("add", "Adds two integers", schema,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			return strconv.Itoa(int(a) + int(b)), nil
		})
}

func noopTool(calls *int) tools.Tool {
	schema := tools.NewObject().Build()
	return tools.NewFuncTool("noop", "Does nothing", schema,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			if calls != nil {
				*calls++
			}
			return "ok", nil
		})
}

// testRuntime builds a runtime over a scripted backend with the send
// and print tools writing into a throwaway buffer.
func testRuntime(replies []string, extra ...tools.Tool) (*Krishna, *providers.ScriptedProvider, *conversation.SlidingWindowManager) {
	registry := tools.NewRegistry()
	registry.Register(tools.NewSendMessageTool(&bytes.Buffer{}))
	registry.Register(tools.NewPrintMessageTool(&bytes.Buffer{}))
	for _, tool := range extra {
		registry.Register(tool)
	}
	provider := providers.NewScriptedProvider(replies...)
	manager := conversation.NewSlidingWindowManager()
	return NewKrishna(provider, manager, registry), provider, manager
}

func actionReply(t *testing.T, toolName string, params map[string]interface{}, heartbeat bool) string {
	t.Helper()
	blob, err := json.Marshal(map[string]interface{}{
		"tool_call": map[string]interface{}{
			"tool_name":   toolName,
			"tool_params": params,
		},
		"request_heartbeat": heartbeat,
	})
	if err != nil {
		t.Fatalf("marshal action: %v", err)
	}
	return string(blob)
}

func systemMessages(manager *conversation.SlidingWindowManager) []string {
	var out []string
	for _, msg := range manager.Fetch(1000) {
		if msg.Role == conversation.RoleSystem {
			out = append(out, msg.Content)
		}
	}
	return out
}

func toolMessages(manager *conversation.SlidingWindowManager) []string {
	var out []string
	for _, msg := range manager.Fetch(1000) {
		if msg.Role == conversation.RoleTool {
			out = append(out, msg.Content)
		}
	}
	return out
}

func TestKrishna_PlainReplyEndsInOneIteration(t *testing.T) {
	k, provider, manager := testRuntime([]string{"Hello there."})

	final, err := k.SendText(context.Background(), "hi")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if final != "Hello there." {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", provider.Calls())
	}

	log := manager.Fetch(10)
	if len(log) != 2 || log[0].Role != conversation.RoleUser || log[1].Role != conversation.RoleAssistant {
		t.Errorf("log roles = %+v, want user then assistant", log)
	}
}

func TestKrishna_AddEndToEnd(t *testing.T) {
	replies := []string{
		actionReply(t, "add", map[string]interface{}{"a": 2, "b": 3}, false),
		"Result is 5",
	}
	k, provider, manager := testRuntime(replies, addTool())

	stream := k.Send(context.Background(), "what is 2+3?")
	var chunks []string
	for {
		chunk, ok := stream.Next()
		if !ok {
			break
		}
		chunks = append(chunks, chunk)
	}

	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if stream.Final() != "Result is 5" {
		t.Errorf("final = %q, want Result is 5", stream.Final())
	}
	if provider.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", provider.Calls())
	}
	if len(chunks) != 2 || chunks[0] != "5" || chunks[1] != "Result is 5" {
		t.Errorf("chunks = %q, want [5, Result is 5]", chunks)
	}

	feedback := toolMessages(manager)
	if len(feedback) != 1 || feedback[0] != "5" {
		t.Errorf("tool feedback = %q, want [5]", feedback)
	}
}

func TestKrishna_IterationLimitIsExact(t *testing.T) {
	var dispatched int
	replies := []string{actionReply(t, "noop", map[string]interface{}{}, true)}
	k, provider, manager := testRuntime(replies, noopTool(&dispatched))

	final, err := k.SendText(context.Background(), "loop forever")
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("err = %v, want ErrIterationLimit", err)
	}
	if final != "Maximum tool iterations exceeded. Please refine the request." {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != MaxAgentLoops {
		t.Errorf("model calls = %d, want %d", provider.Calls(), MaxAgentLoops)
	}
	if dispatched != MaxAgentLoops {
		t.Errorf("dispatches = %d, want %d", dispatched, MaxAgentLoops)
	}

	// The failure is also recorded, leaving the log usable for the next request.
	msgs := systemMessages(manager)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Maximum tool iterations exceeded") {
		t.Errorf("system messages = %q", msgs)
	}
}

func TestKrishna_ConfiguredMaxLoops(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(tools.NewSendMessageTool(&bytes.Buffer{}))
	registry.Register(tools.NewPrintMessageTool(&bytes.Buffer{}))
	registry.Register(noopTool(nil))
	provider := providers.NewScriptedProvider(actionReply(t, "noop", map[string]interface{}{}, true))
	k := NewKrishna(provider, conversation.NewSlidingWindowManager(), registry, WithMaxLoops(5))

	_, err := k.SendText(context.Background(), "loop")
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("err = %v, want ErrIterationLimit", err)
	}
	if provider.Calls() != 5 {
		t.Errorf("model calls = %d, want 5", provider.Calls())
	}
}

func TestKrishna_SchemaEchoNeverDispatches(t *testing.T) {
	add := addTool()
	echo := actionReply(t, "add", add.Parameters(), false)
	k, _, manager := testRuntime([]string{echo, "done"}, add)

	final, err := k.SendText(context.Background(), "add something")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if final != "done" {
		t.Errorf("final = %q", final)
	}
	if feedback := toolMessages(manager); len(feedback) != 0 {
		t.Errorf("tool dispatched despite schema echo: %q", feedback)
	}

	msgs := systemMessages(manager)
	want := "Do not return the parameter schema for 'add'. Provide actual argument values."
	if len(msgs) != 1 || msgs[0] != want {
		t.Errorf("system messages = %q, want [%q]", msgs, want)
	}
}

func TestKrishna_UnknownToolListsValidNames(t *testing.T) {
	replies := []string{
		actionReply(t, "frobnicate", map[string]interface{}{}, false),
		"done",
	}
	k, provider, manager := testRuntime(replies, addTool())

	final, err := k.SendText(context.Background(), "go")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if final != "done" {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", provider.Calls())
	}

	msgs := systemMessages(manager)
	if len(msgs) != 1 {
		t.Fatalf("system messages = %q", msgs)
	}
	if !strings.HasPrefix(msgs[0], "Tool 'frobnicate' is unavailable. Choose one of: ") {
		t.Errorf("corrective = %q", msgs[0])
	}
	for _, name := range []string{"add", "print_message", "send_message"} {
		if !strings.Contains(msgs[0], name) {
			t.Errorf("corrective %q missing tool %q", msgs[0], name)
		}
	}
}

func TestKrishna_MalformedActionShape(t *testing.T) {
	replies := []string{
		`Here is my answer: {"answer": 42}`,
		`{"tool_call": {"tool_name": "add", "tool_params": "2,3"}, "request_heartbeat": false}`,
		"done",
	}
	k, provider, manager := testRuntime(replies, addTool())

	final, err := k.SendText(context.Background(), "go")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if final != "done" {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != 3 {
		t.Errorf("model calls = %d, want 3", provider.Calls())
	}

	msgs := systemMessages(manager)
	if len(msgs) != 2 {
		t.Fatalf("system messages = %q", msgs)
	}
	if msgs[0] != "Action schema validation failed. Ensure the response follows the required format." {
		t.Errorf("first corrective = %q", msgs[0])
	}
	if msgs[1] != "tool_call.tool_params must be an object containing the call arguments." {
		t.Errorf("second corrective = %q", msgs[1])
	}
}

func TestKrishna_ToolFailuresAreRecoverable(t *testing.T) {
	failing := tools.NewFuncTool("fragile", "Always fails", tools.NewObject().Build(),
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", fmt.Errorf("disk on fire")
		})
	picky := tools.NewFuncTool("picky", "Rejects its arguments", tools.NewObject().Build(),
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", tools.InvalidArgs("path is required")
		})

	replies := []string{
		actionReply(t, "fragile", map[string]interface{}{}, false),
		actionReply(t, "picky", map[string]interface{}{}, false),
		"recovered",
	}
	k, provider, manager := testRuntime(replies, failing, picky)

	final, err := k.SendText(context.Background(), "go")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if final != "recovered" {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != 3 {
		t.Errorf("model calls = %d, want 3", provider.Calls())
	}

	feedback := toolMessages(manager)
	if len(feedback) != 2 {
		t.Fatalf("tool feedback = %q", feedback)
	}
	if !strings.HasPrefix(feedback[0], "ERROR[fragile]: Execution error: ") {
		t.Errorf("execution feedback = %q", feedback[0])
	}
	if !strings.HasPrefix(feedback[1], "ERROR[picky]: Invalid arguments: ") {
		t.Errorf("argument feedback = %q", feedback[1])
	}
}

func TestKrishna_TerminalSendEndsLoopWithoutChunk(t *testing.T) {
	var out bytes.Buffer
	registry := tools.NewRegistry()
	registry.Register(tools.NewSendMessageTool(&out))
	registry.Register(tools.NewPrintMessageTool(&bytes.Buffer{}))
	provider := providers.NewScriptedProvider(
		actionReply(t, "send_message", map[string]interface{}{"content": "Hi!"}, false))
	k := NewKrishna(provider, conversation.NewSlidingWindowManager(), registry)

	stream := k.Send(context.Background(), "say hi")
	var chunks []string
	for {
		chunk, ok := stream.Next()
		if !ok {
			break
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 0 {
		t.Errorf("send_message feedback surfaced as chunks: %q", chunks)
	}
	if stream.Final() != "Hi!" {
		t.Errorf("final = %q, want Hi!", stream.Final())
	}
	if provider.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", provider.Calls())
	}
	if out.String() != "Hi!\n" {
		t.Errorf("delivered output = %q", out.String())
	}
}

func TestKrishna_HeartbeatChainsTerminalSends(t *testing.T) {
	replies := []string{
		actionReply(t, "send_message", map[string]interface{}{"content": "working on it"}, true),
		actionReply(t, "add", map[string]interface{}{"a": 20, "b": 22}, false),
		"The answer is 42.",
	}
	k, provider, manager := testRuntime(replies, addTool())

	final, err := k.SendText(context.Background(), "compute")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if final != "The answer is 42." {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != 3 {
		t.Errorf("model calls = %d, want 3", provider.Calls())
	}

	feedback := toolMessages(manager)
	if len(feedback) != 2 || feedback[0] != "working on it" || feedback[1] != "42" {
		t.Errorf("tool feedback = %q", feedback)
	}
}

func TestKrishna_FeedbackFallsBackToContentParam(t *testing.T) {
	silent := tools.NewFuncTool("silent", "Returns nothing",
		tools.NewObject().Optional("content", tools.String()).Build(),
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", nil
		})
	replies := []string{
		actionReply(t, "silent", map[string]interface{}{"content": "echoed back"}, false),
		actionReply(t, "silent", map[string]interface{}{}, false),
		"done",
	}
	k, _, manager := testRuntime(replies, silent)

	stream := k.Send(context.Background(), "go")
	var chunks []string
	for {
		chunk, ok := stream.Next()
		if !ok {
			break
		}
		chunks = append(chunks, chunk)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Send: %v", err)
	}

	feedback := toolMessages(manager)
	if len(feedback) != 2 {
		t.Fatalf("tool feedback = %q", feedback)
	}
	if feedback[0] != "echoed back" {
		t.Errorf("feedback[0] = %q, want the content param", feedback[0])
	}
	if feedback[1] != "Tool execution completed." {
		t.Errorf("feedback[1] = %q, want the completion marker", feedback[1])
	}

	// The backfilled feedback surfaces as chunks; the silent tool never
	// swallows an iteration.
	if len(chunks) != 3 {
		t.Fatalf("chunks = %q, want two feedbacks plus the final answer", chunks)
	}
	if chunks[0] != "echoed back" || chunks[1] != "Tool execution completed." {
		t.Errorf("chunks = %q", chunks[:2])
	}
}

func TestKrishna_NonTextualReplyIsFatal(t *testing.T) {
	k, provider, _ := testRuntime([]string{""})

	final, err := k.SendText(context.Background(), "hello")
	if !errors.Is(err, ErrNonTextualReply) {
		t.Fatalf("err = %v, want ErrNonTextualReply", err)
	}
	if final != "Model returned a non-textual response. Unable to continue." {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", provider.Calls())
	}
}

func TestKrishna_UsageAccumulates(t *testing.T) {
	replies := []string{
		actionReply(t, "add", map[string]interface{}{"a": 1, "b": 1}, false),
		"2",
	}
	k, _, _ := testRuntime(replies, addTool())

	if _, err := k.SendText(context.Background(), "1+1"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	// The scripted backend reports 10/5/15 per call; two calls total.
	totals := k.UsageTotals()
	if totals["input_tokens"] != 20 || totals["output_tokens"] != 10 || totals["total_tokens"] != 30 {
		t.Errorf("totals = %v", totals)
	}
	last := k.LastUsage()
	if last["total_tokens"] != 15 {
		t.Errorf("last = %v", last)
	}
}

func TestKrishna_PromptCarriesCatalogAndHistory(t *testing.T) {
	recorder := &promptRecorder{reply: "fine"}
	registry := tools.NewRegistry()
	registry.Register(tools.NewSendMessageTool(&bytes.Buffer{}))
	registry.Register(tools.NewPrintMessageTool(&bytes.Buffer{}))
	registry.Register(addTool())
	manager := conversation.NewSlidingWindowManager()
	manager.Add(conversation.NewMessage(conversation.RoleAssistant, "earlier turn"))
	k := NewKrishna(recorder, manager, registry)

	if _, err := k.SendText(context.Background(), "current question"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	prompt := recorder.lastPrompt
	for _, want := range []string{
		"<base_instructions>",
		`"tool_name": "add"`,
		`{"role":"assistant","content":"earlier turn"}`,
		"<user_message>\ncurrent question\n</user_message>",
		`"request_heartbeat": <true|false>`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

// promptRecorder captures the rendered prompt for inspection. With a
// script it behaves like the scripted provider, repeating the last
// entry once exhausted; otherwise it always returns reply.
type promptRecorder struct {
	lastPrompt string
	reply      string
	script     []string
	calls      int
}

func (p *promptRecorder) Invoke(ctx context.Context, prompt string) (*providers.ModelReply, error) {
	p.lastPrompt = prompt
	p.calls++
	if len(p.script) > 0 {
		idx := p.calls - 1
		if idx >= len(p.script) {
			idx = len(p.script) - 1
		}
		return &providers.ModelReply{Content: p.script[idx]}, nil
	}
	return &providers.ModelReply{Content: p.reply}, nil
}
