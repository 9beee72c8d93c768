package agent

import "testing"

func TestExtractObject_ObjectAtStart(t *testing.T) {
	payload, raw, rest, found := ExtractObject(`{"a": 1} trailing prose`)
	if !found {
		t.Fatal("expected an object")
	}
	if payload["a"] != float64(1) {
		t.Errorf("payload a = %v, want 1", payload["a"])
	}
	if raw != `{"a": 1}` {
		t.Errorf("raw = %q", raw)
	}
	if rest != "trailing prose" {
		t.Errorf("rest = %q, want trailing prose", rest)
	}
}

func TestExtractObject_ObjectInMiddle(t *testing.T) {
	text := `I'll call the tool now.
{"tool_call": {"tool_name": "add", "tool_params": {"a": 2, "b": 3}}, "request_heartbeat": false}
Done.`
	payload, _, rest, found := ExtractObject(text)
	if !found {
		t.Fatal("expected an object")
	}
	if _, ok := payload["tool_call"]; !ok {
		t.Error("payload missing tool_call")
	}
	if rest != "I'll call the tool now.\nDone." {
		t.Errorf("rest = %q", rest)
	}
}

func TestExtractObject_SkipsMalformedCandidates(t *testing.T) {
	text := `set {brace but not json} first, then {"ok": true} follows`
	payload, _, _, found := ExtractObject(text)
	if !found {
		t.Fatal("expected the second candidate to parse")
	}
	if payload["ok"] != true {
		t.Errorf("payload = %v, want the later valid object", payload)
	}
}

func TestExtractObject_BracesInsideStrings(t *testing.T) {
	text := `{"content": "use {placeholders} like this", "n": 2}`
	payload, _, _, found := ExtractObject(text)
	if !found {
		t.Fatal("expected an object")
	}
	if payload["content"] != "use {placeholders} like this" {
		t.Errorf("content = %v", payload["content"])
	}
}

func TestExtractObject_NestedObjects(t *testing.T) {
	text := `prefix {"outer": {"inner": [1, 2, {"deep": true}]}} suffix`
	_, raw, rest, found := ExtractObject(text)
	if !found {
		t.Fatal("expected an object")
	}
	if raw != `{"outer": {"inner": [1, 2, {"deep": true}]}}` {
		t.Errorf("raw = %q", raw)
	}
	if rest != "prefix\nsuffix" {
		t.Errorf("rest = %q", rest)
	}
}

func TestExtractObject_NoObject(t *testing.T) {
	_, _, rest, found := ExtractObject("  just a plain answer  ")
	if found {
		t.Fatal("found an object in plain text")
	}
	if rest != "just a plain answer" {
		t.Errorf("rest = %q", rest)
	}
}

func TestExtractObject_OnlyMalformed(t *testing.T) {
	_, _, _, found := ExtractObject(`{this never closes properly`)
	if found {
		t.Fatal("malformed candidate reported as found")
	}
}

func TestParseAction_Valid(t *testing.T) {
	payload, _, _, found := ExtractObject(`{"thought": "add them", "tool_call": {"tool_name": "add", "tool_params": {"a": 2, "b": 3}}, "request_heartbeat": true}`)
	if !found {
		t.Fatal("expected an object")
	}
	action, err := ParseAction(payload)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if action.ToolCall.ToolName != "add" {
		t.Errorf("tool name = %q", action.ToolCall.ToolName)
	}
	if !action.RequestHeartbeat {
		t.Error("heartbeat not carried through")
	}
	if action.Thought != "add them" {
		t.Errorf("thought = %q", action.Thought)
	}
}

func TestParseAction_Defects(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]interface{}
		want    error
	}{
		{"missing tool_call", map[string]interface{}{"request_heartbeat": false}, ErrActionShape},
		{"tool_call not object", map[string]interface{}{"tool_call": "add"}, ErrActionShape},
		{"missing tool_name", map[string]interface{}{"tool_call": map[string]interface{}{"tool_params": map[string]interface{}{}}}, ErrActionShape},
		{"missing tool_params", map[string]interface{}{"tool_call": map[string]interface{}{"tool_name": "add"}}, ErrActionShape},
		{"params not object", map[string]interface{}{"tool_call": map[string]interface{}{"tool_name": "add", "tool_params": "2,3"}}, ErrParamsNotObject},
		{"heartbeat not bool", map[string]interface{}{"tool_call": map[string]interface{}{"tool_name": "add", "tool_params": map[string]interface{}{}}, "request_heartbeat": "yes"}, ErrActionShape},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseAction(tc.payload); err != tc.want {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseActionPlan(t *testing.T) {
	payload, _, _, found := ExtractObject(`{"plan": [{"thought": "read it", "tool_call": {"tool_name": "fs_read", "tool_params": {"path": "main.go"}}}]}`)
	if !found {
		t.Fatal("expected an object")
	}
	plan, err := ParseActionPlan(payload)
	if err != nil {
		t.Fatalf("ParseActionPlan: %v", err)
	}
	if len(plan.Plan) != 1 || plan.Plan[0].ToolCall.ToolName != "fs_read" {
		t.Errorf("plan = %+v", plan)
	}

	if _, err := ParseActionPlan(map[string]interface{}{"plan": "not a list"}); err != ErrActionShape {
		t.Errorf("bad plan err = %v, want ErrActionShape", err)
	}
}
