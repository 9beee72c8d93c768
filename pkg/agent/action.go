package agent

import "errors"

// ToolCall names a registered tool and carries the concrete argument
// values the model chose for it.
type ToolCall struct {
	ToolName   string                 `json:"tool_name"`
	ToolParams map[string]interface{} `json:"tool_params"`
}

// Action is the structured object a model reply must embed to request a
// tool invocation. A reply with no parseable Action is a direct answer.
type Action struct {
	Thought          string   `json:"thought,omitempty"`
	ToolCall         ToolCall `json:"tool_call"`
	RequestHeartbeat bool     `json:"request_heartbeat"`
}

// ActionPlan is the multi-step variant emitted by the plan/act/observe
// runtime: an ordered batch of proposed actions.
type ActionPlan struct {
	Plan []Action `json:"plan"`
}

// Validation failures are distinguished so the loop can author the
// right corrective message.
var (
	// ErrActionShape covers a missing or malformed tool_call envelope.
	ErrActionShape = errors.New("action does not match the required shape")
	// ErrParamsNotObject covers a tool_params value that is not a JSON object.
	ErrParamsNotObject = errors.New("tool_params is not an object")
)

// ParseAction validates a decoded JSON object against the Action shape.
// The generic map form is kept so a wrong-typed field can be reported
// precisely instead of as a Go unmarshalling error.
func ParseAction(payload map[string]interface{}) (*Action, error) {
	action := &Action{}

	if thought, present := payload["thought"]; present && thought != nil {
		s, ok := thought.(string)
		if !ok {
			return nil, ErrActionShape
		}
		action.Thought = s
	}

	rawCall, present := payload["tool_call"]
	if !present {
		return nil, ErrActionShape
	}
	call, ok := rawCall.(map[string]interface{})
	if !ok {
		return nil, ErrActionShape
	}

	name, ok := call["tool_name"].(string)
	if !ok || name == "" {
		return nil, ErrActionShape
	}
	action.ToolCall.ToolName = name

	rawParams, present := call["tool_params"]
	if !present {
		return nil, ErrActionShape
	}
	params, ok := rawParams.(map[string]interface{})
	if !ok {
		return nil, ErrParamsNotObject
	}
	action.ToolCall.ToolParams = params

	if hb, present := payload["request_heartbeat"]; present && hb != nil {
		b, ok := hb.(bool)
		if !ok {
			return nil, ErrActionShape
		}
		action.RequestHeartbeat = b
	}

	return action, nil
}

// ParseActionPlan validates a decoded JSON object against the
// ActionPlan shape. Heartbeat flags are ignored in plans; ordering of
// the batch is the chaining.
func ParseActionPlan(payload map[string]interface{}) (*ActionPlan, error) {
	rawPlan, present := payload["plan"]
	if !present {
		return nil, ErrActionShape
	}
	steps, ok := rawPlan.([]interface{})
	if !ok {
		return nil, ErrActionShape
	}

	plan := &ActionPlan{Plan: make([]Action, 0, len(steps))}
	for _, rawStep := range steps {
		step, ok := rawStep.(map[string]interface{})
		if !ok {
			return nil, ErrActionShape
		}
		action, err := ParseAction(step)
		if err != nil {
			return nil, err
		}
		plan.Plan = append(plan.Plan, *action)
	}
	return plan, nil
}
