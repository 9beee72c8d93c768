package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/innomightlabs/krishna/pkg/logger"
	"github.com/innomightlabs/krishna/pkg/providers"
)

// WatchPlan is the model's answer to a watch-analysis request: what to
// watch and what to do when it changes.
type WatchPlan struct {
	Paths          []string `json:"paths"`
	Patterns       []string `json:"patterns"`
	IgnorePatterns []string `json:"ignore_patterns"`
	Recursive      bool     `json:"recursive"`
	ActionPrompt   string   `json:"action_prompt"`
	Description    string   `json:"description"`
}

// Runner is the slice of a runtime the watcher agent needs to trigger
// actions. Both Krishna and PlanActObserve satisfy it.
type Runner interface {
	SendText(ctx context.Context, userMessage string) (string, error)
}

// RunnerFactory builds a fresh runtime/conversation pair for one
// background run. Sharing the interactive session's pair with watcher
// callbacks is not allowed; each event run owns its own.
type RunnerFactory func() Runner

const watchAnalysisInstructions = `You are a file watcher analysis agent. Your job is to analyze user requests about watching files and directories, then provide specific recommendations.

Given a user request, analyze it and provide a JSON response with the following structure:
{
    "paths": ["list of paths to watch"],
    "patterns": ["list of file patterns like *.go, *.md"],
    "ignore_patterns": ["patterns to ignore like vendor/*, .git/*"],
    "recursive": true/false,
    "action_prompt": "specific prompt to execute when files change",
    "description": "human readable description of what this watcher does"
}

Be specific and practical. If the user mentions:
- "Go files" -> patterns: ["*.go"]
- "documentation" -> patterns: ["*.md", "*.rst", "*.txt"]
- "ignore dependencies" -> ignore_patterns: ["vendor/*", "node_modules/*"]
- "git changes" -> action_prompt should mention analyzing git status
- "tests" -> patterns: ["*_test.go"]

Always provide actionable action_prompts that describe what should happen when files change.`

// WatcherAgent turns a natural-language watch request into a concrete
// watch plan and runs the configured action when events arrive.
type WatcherAgent struct {
	provider providers.Provider
}

func NewWatcherAgent(provider providers.Provider) *WatcherAgent {
	return &WatcherAgent{provider: provider}
}

// AnalyzeWatchRequest asks the model for a watch plan. Any failure,
// from the transport up to unparseable JSON, degrades to a safe
// default derived from the request text.
func (w *WatcherAgent) AnalyzeWatchRequest(ctx context.Context, userRequest string) WatchPlan {
	prompt := fmt.Sprintf("%s\n\n<user_request>\n%s\n</user_request>", watchAnalysisInstructions, userRequest)

	reply, err := w.provider.Invoke(ctx, prompt)
	if err != nil {
		logger.ErrorCF("agent", "Watch analysis failed",
			map[string]interface{}{"error": err.Error()})
		return defaultWatchPlan(userRequest)
	}

	_, raw, _, found := ExtractObject(reply.Content)
	if !found {
		return defaultWatchPlan(userRequest)
	}

	var plan WatchPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		logger.WarnCF("agent", "Watch analysis returned malformed plan",
			map[string]interface{}{"error": err.Error()})
		return defaultWatchPlan(userRequest)
	}
	if len(plan.Paths) == 0 {
		plan.Paths = []string{"."}
	}
	if plan.ActionPrompt == "" {
		plan.ActionPrompt = "Analyze changes based on: " + userRequest
	}
	if plan.Description == "" {
		plan.Description = "Watch for changes related to: " + userRequest
	}
	return plan
}

func defaultWatchPlan(userRequest string) WatchPlan {
	return WatchPlan{
		Paths:          []string{"."},
		Patterns:       []string{},
		IgnorePatterns: []string{".git/*"},
		Recursive:      true,
		ActionPrompt:   "Analyze changes based on: " + userRequest,
		Description:    "Watch for changes related to: " + userRequest,
	}
}

// ExecuteAction runs a watcher's action prompt against a fresh runtime
// built by the factory, with the triggering event folded into the
// prompt.
func (w *WatcherAgent) ExecuteAction(ctx context.Context, watcherID, actionPrompt, description, eventType, filePath string, newRunner RunnerFactory) (string, error) {
	contextPrompt := fmt.Sprintf(`%s

File Event Details:
- Event Type: %s
- File Path: %s
- Watcher ID: %s
- Description: %s

Please analyze this file change and execute the appropriate action.`, actionPrompt, eventType, filePath, watcherID, description)

	logger.InfoCF("agent", "Executing watcher action",
		map[string]interface{}{"watcher_id": watcherID, "event": eventType, "path": filePath})

	result, err := newRunner().SendText(ctx, contextPrompt)
	if err != nil {
		logger.ErrorCF("agent", "Watcher action failed",
			map[string]interface{}{"watcher_id": watcherID, "error": err.Error()})
		return "", err
	}
	return result, nil
}
