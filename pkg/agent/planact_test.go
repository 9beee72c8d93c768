package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/innomightlabs/krishna/pkg/conversation"
	"github.com/innomightlabs/krishna/pkg/providers"
	"github.com/innomightlabs/krishna/pkg/tools"
)

// scriptedApprover replays decisions in order and records what it was
// asked about.
type scriptedApprover struct {
	decisions   []Decision
	corrections []string
	asked       []string
}

func (a *scriptedApprover) Review(toolName string, toolParams map[string]interface{}) (Decision, string) {
	a.asked = append(a.asked, toolName)
	idx := len(a.asked) - 1
	if idx >= len(a.decisions) {
		return DecisionApprove, ""
	}
	correction := ""
	if idx < len(a.corrections) {
		correction = a.corrections[idx]
	}
	return a.decisions[idx], correction
}

func planReply(t *testing.T, actions ...Action) string {
	t.Helper()
	blob, err := json.Marshal(ActionPlan{Plan: actions})
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	return "On it.\n" + string(blob)
}

func addAction(a, b int) Action {
	return Action{
		Thought: "add the numbers",
		ToolCall: ToolCall{
			ToolName:   "add",
			ToolParams: map[string]interface{}{"a": a, "b": b},
		},
	}
}

func newPlanRuntime(replies []string, approver Approver, extra ...tools.Tool) (*PlanActObserve, *providers.ScriptedProvider, *conversation.SlidingWindowManager) {
	registry := tools.NewRegistry()
	registry.Register(tools.NewSendMessageTool(&bytes.Buffer{}))
	for _, tool := range extra {
		registry.Register(tool)
	}
	provider := providers.NewScriptedProvider(replies...)
	manager := conversation.NewSlidingWindowManager()
	return NewPlanActObserve(provider, manager, registry, approver), provider, manager
}

func TestPlanActObserve_ApproveAndDeny(t *testing.T) {
	approver := &scriptedApprover{decisions: []Decision{DecisionApprove, DecisionDeny}}
	replies := []string{
		planReply(t, addAction(2, 3), addAction(4, 4)),
		"All done.",
	}
	agent, provider, manager := newPlanRuntime(replies, approver, addTool())

	final, err := agent.SendText(context.Background(), "add some numbers")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if final != "All done." {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", provider.Calls())
	}
	if len(approver.asked) != 2 {
		t.Errorf("approver asked %d times, want 2", len(approver.asked))
	}

	feedback := toolMessages(manager)
	if len(feedback) != 2 {
		t.Fatalf("tool messages = %q", feedback)
	}
	if feedback[0] != "5" {
		t.Errorf("approved step feedback = %q, want 5", feedback[0])
	}
	if feedback[1] != "User denied tool execution." {
		t.Errorf("denied step feedback = %q", feedback[1])
	}
}

func TestPlanActObserve_RememberSuppressesPrompts(t *testing.T) {
	approver := &scriptedApprover{decisions: []Decision{DecisionApproveRemember}}
	replies := []string{
		planReply(t, addAction(1, 1), addAction(2, 2)),
		planReply(t, addAction(3, 3)),
		"Done.",
	}
	agent, _, manager := newPlanRuntime(replies, approver, addTool())

	if _, err := agent.SendText(context.Background(), "keep adding"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if len(approver.asked) != 1 {
		t.Errorf("approver asked %d times, want 1 (remembered)", len(approver.asked))
	}
	feedback := toolMessages(manager)
	if len(feedback) != 3 {
		t.Errorf("dispatches = %d, want 3", len(feedback))
	}
}

func TestPlanActObserve_CorrectionBecomesUserTurn(t *testing.T) {
	approver := &scriptedApprover{
		decisions:   []Decision{DecisionDenyWithCorrection},
		corrections: []string{"Use the readme file instead."},
	}
	replies := []string{
		planReply(t, addAction(9, 9)),
		"Understood.",
	}
	agent, _, manager := newPlanRuntime(replies, approver, addTool())

	if _, err := agent.SendText(context.Background(), "go"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if feedback := toolMessages(manager); len(feedback) != 0 {
		t.Errorf("corrected step still dispatched: %q", feedback)
	}

	var userTurns []string
	for _, msg := range manager.Fetch(100) {
		if msg.Role == conversation.RoleUser {
			userTurns = append(userTurns, msg.Content)
		}
	}
	if len(userTurns) != 2 || userTurns[1] != "Use the readme file instead." {
		t.Errorf("user turns = %q, want the correction injected", userTurns)
	}
}

func TestPlanActObserve_InvalidPlanGetsCorrective(t *testing.T) {
	replies := []string{
		`{"plan": "not a list"}`,
		"Fine, plain answer.",
	}
	agent, provider, manager := newPlanRuntime(replies, AutoApprover{})

	final, err := agent.SendText(context.Background(), "go")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if final != "Fine, plain answer." {
		t.Errorf("final = %q", final)
	}
	if provider.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", provider.Calls())
	}

	found := false
	for _, msg := range manager.Fetch(100) {
		if msg.Role == conversation.RoleUser && msg.Content == "Validation Error! Provide a plan in proper json format." {
			found = true
		}
	}
	if !found {
		t.Error("plan corrective not injected as a user turn")
	}
}

func TestPlanActObserve_NarrationAndObservationsStream(t *testing.T) {
	replies := []string{
		planReply(t, addAction(2, 2)),
		"Sum computed.",
	}
	agent, _, _ := newPlanRuntime(replies, AutoApprover{}, addTool())

	stream := agent.Send(context.Background(), "2+2")
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

	if len(chunks) != 3 || chunks[0] != "On it." || chunks[1] != "4" || chunks[2] != "Sum computed." {
		t.Errorf("chunks = %q, want narration, observation, final", chunks)
	}
	if stream.Final() != "Sum computed." {
		t.Errorf("final = %q", stream.Final())
	}
}

func TestPlanActObserve_ObservationCarriedIntoNextPrompt(t *testing.T) {
	recorder := &promptRecorder{reply: "done"}
	registry := tools.NewRegistry()
	registry.Register(addTool())
	agent := NewPlanActObserve(recorder, conversation.NewSlidingWindowManager(), registry, AutoApprover{})

	// First turn plans a call; the second prompt must then carry the
	// first turn's observation.
	recorder.script = []string{planReply(t, addAction(5, 5)), "done"}

	if _, err := agent.SendText(context.Background(), "add"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if !strings.Contains(recorder.lastPrompt, "Tool Use ID: ") {
		t.Error("last prompt missing the tool-use observation block")
	}
	if !strings.Contains(recorder.lastPrompt, "\n10\n") {
		t.Errorf("last prompt missing the observation value:\n%s", recorder.lastPrompt)
	}
}

func TestPlanActObserve_UnknownToolSkipsStep(t *testing.T) {
	replies := []string{
		planReply(t, Action{ToolCall: ToolCall{ToolName: "bogus", ToolParams: map[string]interface{}{}}}),
		"done",
	}
	agent, _, manager := newPlanRuntime(replies, AutoApprover{})

	if _, err := agent.SendText(context.Background(), "go"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	msgs := systemMessages(manager)
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "Tool 'bogus' is unavailable.") {
		t.Errorf("system messages = %q", msgs)
	}
}
