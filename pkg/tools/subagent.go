package tools

import (
	"context"
	"strings"
)

// SubagentTool hands a well-defined task to a plan/act/observe agent
// equipped with file-system and shell tools. Each invocation runs on a
// fresh conversation owned by the runner.
type SubagentTool struct {
	runner SubagentRunner
}

func NewSubagentTool(runner SubagentRunner) *SubagentTool {
	return &SubagentTool{runner: runner}
}

func (t *SubagentTool) Name() string {
	return "plan_act_observe_subagent"
}

func (t *SubagentTool) Description() string {
	return "Delegate a mini-goal to an assistant agent equipped with file system read/write/search/find and shell tools. Takes a well defined prompt with step by step actions and returns the final result."
}

func (t *SubagentTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("prompt", String().Describe("Well defined set of instructions on the task that needs to be accomplished")).
		Build()
}

func (t *SubagentTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	prompt, ok := stringArg(args, "prompt")
	if !ok || strings.TrimSpace(prompt) == "" {
		return "", InvalidArgs("prompt is required")
	}
	return t.runner.RunTask(ctx, prompt)
}
