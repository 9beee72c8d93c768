package tools

import (
	"context"
	"fmt"
	"strings"
)

// StartWatcherTool starts a background file watcher from a natural
// language request. Path, patterns, and the action to take on each
// change are resolved by the watcher layer when not given explicitly.
type StartWatcherTool struct {
	controller WatchController
}

func NewStartWatcherTool(controller WatchController) *StartWatcherTool {
	return &StartWatcherTool{controller: controller}
}

func (t *StartWatcherTool) Name() string {
	return "start_file_watcher"
}

func (t *StartWatcherTool) Description() string {
	return "Start a new file watcher that runs an action whenever matching files change"
}

func (t *StartWatcherTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("watch_request", String().Describe("Natural language description of what to watch and do")).
		Optional("path", String().Describe("Specific path to watch, analyzed from the request if not provided")).
		Optional("patterns", Array(String()).Describe("File patterns to watch")).
		Optional("ignore_patterns", Array(String()).Describe("Patterns to ignore")).
		Optional("recursive", Boolean().Describe("Whether to watch subdirectories recursively").WithDefault(true)).
		Build()
}

func (t *StartWatcherTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	watchRequest, ok := stringArg(args, "watch_request")
	if !ok || strings.TrimSpace(watchRequest) == "" {
		return "", InvalidArgs("watch_request is required")
	}

	path, _ := stringArg(args, "path")
	patterns := stringSliceArg(args, "patterns")
	ignorePatterns := stringSliceArg(args, "ignore_patterns")
	recursive := boolArg(args, "recursive", true)

	status, err := t.controller.StartWatch(ctx, watchRequest, path, patterns, ignorePatterns, recursive)
	if err != nil {
		return fmt.Sprintf("Error starting file watcher: %s", err), nil
	}
	return status, nil
}

// StopWatcherTool stops a running file watcher.
type StopWatcherTool struct {
	controller WatchController
}

func NewStopWatcherTool(controller WatchController) *StopWatcherTool {
	return &StopWatcherTool{controller: controller}
}

func (t *StopWatcherTool) Name() string {
	return "stop_file_watcher"
}

func (t *StopWatcherTool) Description() string {
	return "Stop a running file watcher"
}

func (t *StopWatcherTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("watcher_id", String().Describe("ID of the watcher to stop")).
		Build()
}

func (t *StopWatcherTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	watcherID, ok := stringArg(args, "watcher_id")
	if !ok || watcherID == "" {
		return "", InvalidArgs("watcher_id is required")
	}
	if t.controller.StopWatch(watcherID) {
		return fmt.Sprintf("Successfully stopped watcher %s", watcherID), nil
	}
	return fmt.Sprintf("Watcher %s not found or already stopped", watcherID), nil
}

// ListWatchersTool lists all active file watchers.
type ListWatchersTool struct {
	controller WatchController
}

func NewListWatchersTool(controller WatchController) *ListWatchersTool {
	return &ListWatchersTool{controller: controller}
}

func (t *ListWatchersTool) Name() string {
	return "list_file_watchers"
}

func (t *ListWatchersTool) Description() string {
	return "List all active file watchers"
}

func (t *ListWatchersTool) Parameters() map[string]interface{} {
	return NewObject().Build()
}

func (t *ListWatchersTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	watchers := t.controller.DescribeWatchers()
	if len(watchers) == 0 {
		return "No active file watchers", nil
	}
	return "Active File Watchers:\n\n" + strings.Join(watchers, "\n"), nil
}

// WatcherInfoTool reports the full configuration of a single watcher.
type WatcherInfoTool struct {
	controller WatchController
}

func NewWatcherInfoTool(controller WatchController) *WatcherInfoTool {
	return &WatcherInfoTool{controller: controller}
}

func (t *WatcherInfoTool) Name() string {
	return "get_watcher_info"
}

func (t *WatcherInfoTool) Description() string {
	return "Get detailed information about a specific file watcher"
}

func (t *WatcherInfoTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("watcher_id", String().Describe("ID of the watcher")).
		Build()
}

func (t *WatcherInfoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	watcherID, ok := stringArg(args, "watcher_id")
	if !ok || watcherID == "" {
		return "", InvalidArgs("watcher_id is required")
	}
	info, found := t.controller.WatcherInfo(watcherID)
	if !found {
		return fmt.Sprintf("Watcher %s not found", watcherID), nil
	}
	return info, nil
}
