package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/innomightlabs/krishna/pkg/providers"
)

func TestWatcherAgent_AnalyzeWatchRequest(t *testing.T) {
	reply := `Here is the plan:
{"paths": ["internal"], "patterns": ["*.go"], "ignore_patterns": ["vendor/*"], "recursive": true, "action_prompt": "Run the linter on changed files", "description": "Lint Go files"}`
	agent := NewWatcherAgent(providers.NewScriptedProvider(reply))

	plan := agent.AnalyzeWatchRequest(context.Background(), "lint my go files")
	if len(plan.Paths) != 1 || plan.Paths[0] != "internal" {
		t.Errorf("paths = %v", plan.Paths)
	}
	if len(plan.Patterns) != 1 || plan.Patterns[0] != "*.go" {
		t.Errorf("patterns = %v", plan.Patterns)
	}
	if !plan.Recursive {
		t.Error("recursive not carried through")
	}
	if plan.ActionPrompt != "Run the linter on changed files" {
		t.Errorf("action prompt = %q", plan.ActionPrompt)
	}
}

func TestWatcherAgent_AnalyzeFallsBackToDefault(t *testing.T) {
	agent := NewWatcherAgent(providers.NewScriptedProvider("no json here at all"))

	plan := agent.AnalyzeWatchRequest(context.Background(), "watch the docs")
	if len(plan.Paths) != 1 || plan.Paths[0] != "." {
		t.Errorf("default paths = %v", plan.Paths)
	}
	if !plan.Recursive {
		t.Error("default plan should be recursive")
	}
	if !strings.Contains(plan.ActionPrompt, "watch the docs") {
		t.Errorf("action prompt = %q, want the request folded in", plan.ActionPrompt)
	}
	if !strings.Contains(plan.Description, "watch the docs") {
		t.Errorf("description = %q", plan.Description)
	}
}

func TestWatcherAgent_AnalyzeFillsMissingFields(t *testing.T) {
	agent := NewWatcherAgent(providers.NewScriptedProvider(`{"patterns": ["*.md"]}`))

	plan := agent.AnalyzeWatchRequest(context.Background(), "docs")
	if len(plan.Paths) != 1 || plan.Paths[0] != "." {
		t.Errorf("paths = %v, want default .", plan.Paths)
	}
	if plan.ActionPrompt == "" || plan.Description == "" {
		t.Errorf("empty fields not defaulted: %+v", plan)
	}
}

type fakeRunner struct {
	prompt string
	reply  string
}

func (f *fakeRunner) SendText(ctx context.Context, userMessage string) (string, error) {
	f.prompt = userMessage
	return f.reply, nil
}

func TestWatcherAgent_ExecuteActionRendersEventContext(t *testing.T) {
	agent := NewWatcherAgent(providers.NewScriptedProvider("unused"))
	runner := &fakeRunner{reply: "handled"}
	var built int
	factory := func() Runner {
		built++
		return runner
	}

	result, err := agent.ExecuteAction(context.Background(),
		"w-42", "Review the change", "Watches Go files", "write", "pkg/agent/krishna.go", factory)
	if err != nil {
		t.Fatalf("ExecuteAction: %v", err)
	}
	if result != "handled" {
		t.Errorf("result = %q", result)
	}
	if built != 1 {
		t.Errorf("factory invoked %d times, want 1", built)
	}

	for _, want := range []string{
		"Review the change",
		"- Event Type: write",
		"- File Path: pkg/agent/krishna.go",
		"- Watcher ID: w-42",
		"- Description: Watches Go files",
	} {
		if !strings.Contains(runner.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
