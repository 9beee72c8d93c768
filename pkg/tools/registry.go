package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/innomightlabs/krishna/pkg/logger"
)

type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool under its name. Registering a duplicate name
// replaces the earlier tool (last wins) and logs a warning; callers that
// consider this a configuration error should check beforehand with Get.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		logger.WarnCF("tool", "Tool name already registered, replacing",
			map[string]interface{}{"tool": tool.Name()})
	}
	r.tools[tool.Name()] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Execute dispatches to a registered tool. A panicking handler is
// recovered and reported as an ordinary error so a misbehaving tool can
// never take down the hosting loop.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (result string, err error) {
	logger.InfoCF("tool", "Tool execution started",
		map[string]interface{}{
			"tool": name,
			"args": args,
		})

	tool, ok := r.Get(name)
	if !ok {
		logger.ErrorCF("tool", "Tool not found",
			map[string]interface{}{
				"tool": name,
			})
		return "", fmt.Errorf("tool '%s' not found", name)
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool '%s' panicked: %v", name, rec)
			logger.ErrorCF("tool", "Tool execution panicked",
				map[string]interface{}{
					"tool":  name,
					"panic": fmt.Sprintf("%v", rec),
				})
		}
	}()

	result, err = tool.Execute(ctx, args)
	duration := time.Since(start)

	if err != nil {
		logger.ErrorCF("tool", "Tool execution failed",
			map[string]interface{}{
				"tool":        name,
				"duration_ms": duration.Milliseconds(),
				"error":       err.Error(),
			})
	} else {
		logger.InfoCF("tool", "Tool execution completed",
			map[string]interface{}{
				"tool":          name,
				"duration_ms":   duration.Milliseconds(),
				"result_length": len(result),
			})
	}

	return result, err
}

// sortedToolNames returns tool names in sorted order for deterministic
// iteration. Stable ordering keeps the rendered tool catalog identical
// across calls, which matters for prompt-prefix caching.
func (r *Registry) sortedToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) GetDefinitions() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedToolNames()
	definitions := make([]map[string]interface{}, 0, len(sorted))
	for _, name := range sorted {
		definitions = append(definitions, ToolToSchema(r.tools[name]))
	}
	return definitions
}

// List returns all registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedToolNames()
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// GetSummaries returns "name - description" lines for every tool.
func (r *Registry) GetSummaries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedToolNames()
	summaries := make([]string, 0, len(sorted))
	for _, name := range sorted {
		tool := r.tools[name]
		summaries = append(summaries, fmt.Sprintf("- `%s` - %s", tool.Name(), tool.Description()))
	}
	return summaries
}
