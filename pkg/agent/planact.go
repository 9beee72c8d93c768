package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/innomightlabs/krishna/pkg/conversation"
	"github.com/innomightlabs/krishna/pkg/embedding"
	"github.com/innomightlabs/krishna/pkg/logger"
	"github.com/innomightlabs/krishna/pkg/providers"
	"github.com/innomightlabs/krishna/pkg/tools"
)

// Decision is an approver's verdict on one proposed tool call.
type Decision int

const (
	DecisionApprove Decision = iota
	DecisionDeny
	DecisionApproveRemember
	DecisionDenyWithCorrection
)

// Approver gates tool dispatch in the plan/act/observe runtime. The
// correction string is only consulted for DecisionDenyWithCorrection,
// where it is injected as a new user turn instead of a dispatch.
type Approver interface {
	Review(toolName string, toolParams map[string]interface{}) (Decision, string)
}

// AutoApprover approves every call. Used for delegated background runs
// where no human is attached.
type AutoApprover struct{}

func (AutoApprover) Review(string, map[string]interface{}) (Decision, string) {
	return DecisionApprove, ""
}

const planInstructions = "You are Krishna, a deliberate programming assistant. Study the request, propose a plan of tool calls, study the observations, and reply in plain text with no JSON object when the work is done."

// PlanActObserve is the approval-gated runtime variant: the model emits
// a whole plan of actions per turn, each proposed call is reviewed
// before dispatch, and tool observations are fed back into the next
// prompt. Like Krishna it owns exactly one conversation manager.
type PlanActObserve struct {
	provider     providers.Provider
	manager      conversation.Manager
	registry     *tools.Registry
	approver     Approver
	embedder     embedding.Embedder
	instructions string
	maxLoops     int
	window       int
	usage        *usageTracker

	// remembered suppresses further approval prompts per tool name for
	// the lifetime of this runtime instance.
	remembered map[string]bool
}

// PlanOption adjusts a plan/act/observe runtime at construction.
type PlanOption func(*PlanActObserve)

// WithPlanMaxLoops overrides the iteration bound.
func WithPlanMaxLoops(n int) PlanOption {
	return func(a *PlanActObserve) {
		if n > 0 {
			a.maxLoops = n
		}
	}
}

// WithPlanWindow overrides the history window handed to the prompt.
func WithPlanWindow(n int) PlanOption {
	return func(a *PlanActObserve) {
		if n > 0 {
			a.window = n
		}
	}
}

// WithPlanInstructions replaces the system instruction block.
func WithPlanInstructions(text string) PlanOption {
	return func(a *PlanActObserve) {
		if text != "" {
			a.instructions = text
		}
	}
}

// WithPlanEmbedder attaches an embedder; user, assistant and tool
// messages are stored with their vectors when one is configured.
func WithPlanEmbedder(embedder embedding.Embedder) PlanOption {
	return func(a *PlanActObserve) { a.embedder = embedder }
}

func NewPlanActObserve(provider providers.Provider, manager conversation.Manager, registry *tools.Registry, approver Approver, opts ...PlanOption) *PlanActObserve {
	if approver == nil {
		approver = AutoApprover{}
	}
	a := &PlanActObserve{
		provider:     provider,
		manager:      manager,
		registry:     registry,
		approver:     approver,
		instructions: planInstructions,
		maxLoops:     MaxAgentLoops,
		window:       conversation.DefaultWindow,
		usage:        newUsageTracker(),
		remembered:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send starts the plan loop for one user message. Chunks are the
// model's narration and each approved tool's observation.
func (a *PlanActObserve) Send(ctx context.Context, userMessage string) *Stream {
	stream := newStream()
	go a.run(ctx, stream, userMessage)
	return stream
}

// SendText runs the loop to completion, discarding intermediate chunks.
func (a *PlanActObserve) SendText(ctx context.Context, userMessage string) (string, error) {
	return a.Send(ctx, userMessage).Drain()
}

// RunTask satisfies the subagent runner contract on top of SendText.
func (a *PlanActObserve) RunTask(ctx context.Context, prompt string) (string, error) {
	return a.SendText(ctx, prompt)
}

// UsageTotals returns the running token counters for the session.
func (a *PlanActObserve) UsageTotals() map[string]int { return a.usage.Totals() }

// LastUsage returns the token counters of the most recent model call.
func (a *PlanActObserve) LastUsage() map[string]int { return a.usage.Last() }

func (a *PlanActObserve) run(ctx context.Context, stream *Stream, userMessage string) {
	a.addEmbedded(ctx, conversation.RoleUser, userMessage, nil)

	lastObservation := "None"
	turns := 0
	for {
		turns++
		if turns > a.maxLoops {
			failure := "Maximum tool iterations exceeded. Please refine the request."
			a.manager.Add(conversation.NewMessage(conversation.RoleSystem, failure))
			logger.ErrorCF("agent", "Iteration limit exceeded",
				map[string]interface{}{"max_loops": a.maxLoops})
			stream.emit(ctx, failure)
			stream.close(failure, ErrIterationLimit)
			return
		}

		reply, err := a.provider.Invoke(ctx, a.buildPrompt(userMessage, lastObservation, turns))
		if err != nil {
			logger.ErrorCF("agent", "Model invocation failed",
				map[string]interface{}{"error": err.Error()})
			stream.close("", fmt.Errorf("model invocation failed: %w", err))
			return
		}
		a.usage.record(reply.Usage)

		if reply.Content == "" {
			failure := "Model returned a non-textual response. Unable to continue."
			a.manager.Add(conversation.NewMessage(conversation.RoleSystem, failure))
			stream.emit(ctx, failure)
			stream.close(failure, ErrNonTextualReply)
			return
		}

		payload, _, narration, found := ExtractObject(reply.Content)
		if !found {
			narration = reply.Content
		}
		a.addEmbedded(ctx, conversation.RoleAssistant, narration, nil)

		if !found {
			if err := a.manager.Finalize(); err != nil {
				logger.WarnCF("agent", "Failed to persist conversation",
					map[string]interface{}{"error": err.Error()})
			}
			stream.emit(ctx, narration)
			stream.close(narration, nil)
			return
		}

		plan, err := ParseActionPlan(payload)
		if err != nil {
			if errors.Is(err, ErrParamsNotObject) {
				a.addEmbedded(ctx, conversation.RoleUser, "tool_call.tool_params must be an object containing the call arguments.", nil)
			} else {
				a.addEmbedded(ctx, conversation.RoleUser, "Validation Error! Provide a plan in proper json format.", nil)
			}
			continue
		}

		if narration != "" {
			if !stream.emit(ctx, narration) {
				stream.close("", ctx.Err())
				return
			}
		}

		for _, action := range plan.Plan {
			observation, toolUseID := a.executeStep(ctx, action)
			if observation != "" {
				lastObservation += fmt.Sprintf("\nTool Use ID: %s\n%s\n\n", toolUseID, observation)
				if !stream.emit(ctx, observation) {
					stream.close("", ctx.Err())
					return
				}
			}
		}
	}
}

// executeStep runs one approved plan step. It returns the observation
// text ("" when nothing was dispatched) and the tool-use ID recorded
// with it.
func (a *PlanActObserve) executeStep(ctx context.Context, action Action) (string, string) {
	name := action.ToolCall.ToolName
	params := action.ToolCall.ToolParams

	tool, ok := a.registry.Get(name)
	if !ok {
		available := strings.Join(a.registry.List(), ", ")
		a.manager.Add(conversation.NewMessage(conversation.RoleSystem,
			fmt.Sprintf("Tool '%s' is unavailable. Choose one of: %s.", name, available)))
		return "", ""
	}

	if paramsEqualSchema(params, tool.Parameters()) {
		a.manager.Add(conversation.NewMessage(conversation.RoleSystem,
			fmt.Sprintf("Do not return the parameter schema for '%s'. Provide actual argument values.", name)))
		return "", ""
	}

	if !a.remembered[name] {
		decision, correction := a.approver.Review(name, params)
		switch decision {
		case DecisionDeny:
			denied := conversation.NewMessage(conversation.RoleTool, "User denied tool execution.")
			denied.Metadata = map[string]interface{}{"tool_name": name}
			a.manager.Add(denied)
			return "", ""
		case DecisionDenyWithCorrection:
			a.addEmbedded(ctx, conversation.RoleUser, correction, nil)
			return "", ""
		case DecisionApproveRemember:
			a.remembered[name] = true
		}
	}

	toolUseID := uuid.New().String()
	result, err := a.registry.Execute(ctx, name, params)
	if err != nil {
		kind := "Execution error"
		if tools.IsArgumentError(err) {
			kind = "Invalid arguments"
		}
		result = fmt.Sprintf("ERROR[%s]: %s: %v", name, kind, err)
	}

	a.addEmbedded(ctx, conversation.RoleTool, result, map[string]interface{}{"tool_use_id": toolUseID})
	return result, toolUseID
}

// addEmbedded appends a message, attaching its embedding vector when an
// embedder is configured. Embedding failures degrade to a plain message.
func (a *PlanActObserve) addEmbedded(ctx context.Context, role, content string, metadata map[string]interface{}) {
	msg := conversation.NewMessage(role, content)
	msg.Metadata = metadata
	if a.embedder != nil {
		vector, err := a.embedder.EmbedText(ctx, content)
		if err != nil {
			logger.WarnCF("agent", "Embedding failed",
				map[string]interface{}{"error": err.Error()})
		} else {
			msg.Embedding = vector
		}
	}
	a.manager.Add(msg)
}

func (a *PlanActObserve) buildPrompt(userMessage, lastObservation string, iteration int) string {
	var b strings.Builder
	b.WriteString("<base_instructions>\n")
	b.WriteString(a.instructions)
	b.WriteString("\n\n<tooling>\nThe following tools can be invoked:\n")
	b.WriteString(a.renderToolCatalog())
	b.WriteString("\n</tooling>\n\n<response_format>\n")
	b.WriteString(`- To act, reply with a single JSON object only (no markdown fences), shaped exactly as:
  {"plan": [{"thought": "<why>", "tool_call": {"tool_name": "<name>", "tool_params": {...}}}]}
- Order the plan; steps run one after another and each observation is shown to you next turn.
- Include only concrete argument values inside tool_params, never the parameter schema.
- Reply in plain text with no JSON object when delivering the final answer.
For example:
`)
	b.WriteString(planExample())
	b.WriteString("\n</response_format>\n</base_instructions>\n\n<conversation_history>\n")
	b.WriteString(renderHistory(a.manager.Fetch(a.window)))
	b.WriteString("\n</conversation_history>\n\n<last_observation>\n")
	b.WriteString(lastObservation)
	b.WriteString("\n</last_observation>\n\n<iteration_count>\n")
	b.WriteString(fmt.Sprintf("%d", iteration))
	b.WriteString("\n</iteration_count>\n\n<user_message>\n")
	b.WriteString(userMessage)
	b.WriteString("\n</user_message>")
	return b.String()
}

func (a *PlanActObserve) renderToolCatalog() string {
	names := a.registry.List()
	specs := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		tool, ok := a.registry.Get(name)
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

func planExample() string {
	example := ActionPlan{Plan: []Action{
		{
			Thought: "I should understand the project structure",
			ToolCall: ToolCall{
				ToolName:   "fs_read",
				ToolParams: map[string]interface{}{"path": "path/to/readme.md"},
			},
		},
		{
			Thought: "I should check the main project file",
			ToolCall: ToolCall{
				ToolName:   "fs_read",
				ToolParams: map[string]interface{}{"path": "path/to/main.go"},
			},
		},
	}}
	blob, err := json.Marshal(example)
	if err != nil {
		return "{}"
	}
	return string(blob)
}
