package watcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/innomightlabs/krishna/pkg/agent"
)

// Controller glues the watcher manager to the analysis agent and
// implements the watch-tool surface. Each file event is executed
// through a fresh runtime built by the factory; the interactive
// session's runtime is never shared with background runs.
type Controller struct {
	manager      *Manager
	watcherAgent *agent.WatcherAgent
	newRunner    agent.RunnerFactory
}

func NewController(manager *Manager, watcherAgent *agent.WatcherAgent, newRunner agent.RunnerFactory) *Controller {
	return &Controller{
		manager:      manager,
		watcherAgent: watcherAgent,
		newRunner:    newRunner,
	}
}

// StartWatch analyzes the natural-language request into a watch plan,
// lets explicit arguments override it, and starts the watcher.
func (c *Controller) StartWatch(ctx context.Context, request string, path string, patterns, ignorePatterns []string, recursive bool) (string, error) {
	plan := c.watcherAgent.AnalyzeWatchRequest(ctx, request)
	if path == "" && len(plan.Paths) > 0 {
		path = plan.Paths[0]
	}
	if len(patterns) == 0 {
		patterns = plan.Patterns
	}
	if len(ignorePatterns) == 0 {
		ignorePatterns = plan.IgnorePatterns
	}

	callback := func(meta Metadata, eventType, eventPath string) {
		// Background run; the triggering session's context is long gone.
		c.watcherAgent.ExecuteAction(context.Background(),
			meta.WatcherID, meta.ActionPrompt, meta.Description, eventType, eventPath, c.newRunner)
	}

	watcherID, err := c.manager.StartWatcher(path, patterns, ignorePatterns, recursive,
		plan.ActionPrompt, plan.Description, callback)
	if err != nil {
		return "", err
	}

	patternsDesc := strings.Join(patterns, ", ")
	if patternsDesc == "" {
		patternsDesc = "all files"
	}
	return fmt.Sprintf("Started file watcher %s: %s\nWatching: %s\nPatterns: %s\nIgnoring: %s",
		watcherID, plan.Description, path, patternsDesc, strings.Join(ignorePatterns, ", ")), nil
}

// StopWatch stops one watcher by ID.
func (c *Controller) StopWatch(id string) bool {
	return c.manager.StopWatcher(id)
}

// DescribeWatchers renders a summary block per registered watcher.
func (c *Controller) DescribeWatchers() []string {
	watchers := c.manager.ListWatchers()
	out := make([]string, 0, len(watchers))
	for _, meta := range watchers {
		out = append(out, describeWatcher(meta, false))
	}
	return out
}

// WatcherInfo renders the full configuration of one watcher.
func (c *Controller) WatcherInfo(id string) (string, bool) {
	meta, ok := c.manager.GetWatcher(id)
	if !ok {
		return "", false
	}
	return describeWatcher(meta, true), true
}

func describeWatcher(meta Metadata, detailed bool) string {
	status := "🔴 Inactive"
	if meta.IsActive {
		status = "🟢 Active"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** - %s\n", meta.WatcherID, status)
	fmt.Fprintf(&b, "  📁 Path: %s\n", meta.Path)
	fmt.Fprintf(&b, "  📋 Description: %s\n", meta.Description)
	if len(meta.Patterns) > 0 {
		fmt.Fprintf(&b, "  🎯 Patterns: %s\n", strings.Join(meta.Patterns, ", "))
	}
	if len(meta.IgnorePatterns) > 0 {
		fmt.Fprintf(&b, "  🚫 Ignoring: %s\n", strings.Join(meta.IgnorePatterns, ", "))
	}
	fmt.Fprintf(&b, "  🔄 Recursive: %t\n", meta.Recursive)
	fmt.Fprintf(&b, "  📅 Created: %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05"))

	action := meta.ActionPrompt
	if !detailed && len(action) > 100 {
		action = action[:100] + "..."
	}
	fmt.Fprintf(&b, "  ⚡ Action: %s", action)
	return b.String()
}
