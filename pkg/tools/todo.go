package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/innomightlabs/krishna/pkg/logger"
)

type TodoItem struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
	CreatedAt string `json:"created_at"`
}

var (
	validTodoModes = []string{
		"create", "complete", "modify_status", "modify_priority", "list", "delete",
		"bulk_delete", "bulk_complete", "bulk_modify_status", "bulk_modify_priority",
	}
	validTodoStatuses   = []string{"pending", "in_progress", "completed", "cancelled"}
	validTodoPriorities = []string{"low", "medium", "high"}
)

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// TodoTool is a unified todo manager persisting to a JSON file.
type TodoTool struct {
	path string
}

func NewTodoTool(path string) *TodoTool {
	return &TodoTool{path: path}
}

func (t *TodoTool) Name() string {
	return "todo_manager"
}

func (t *TodoTool) Description() string {
	return "Unified todo management: create, list, complete, modify_status, modify_priority, delete, plus bulk_* variants operating on todo_ids"
}

func (t *TodoTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("mode", Enum(
			"create", "complete", "modify_status", "modify_priority", "list", "delete",
			"bulk_delete", "bulk_complete", "bulk_modify_status", "bulk_modify_priority",
		).Describe("Operation mode")).
		Optional("content", String().Describe("Todo content for create mode (single todo)")).
		Optional("tasks", Array(String()).Describe("Array of task strings for bulk create mode")).
		Optional("todo_id", String().Describe("Todo ID for modify/delete operations, partial prefixes accepted")).
		Optional("todo_ids", Array(String()).Describe("List of todo IDs for bulk operations")).
		Optional("status", Enum("pending", "in_progress", "completed", "cancelled").
			Describe("Status value for modify_status modes")).
		Optional("priority", Enum("low", "medium", "high").
			Describe("Priority level for create mode").WithDefault("medium")).
		Optional("filter_status", String().Describe("Status filter for list mode")).
		Build()
}

func (t *TodoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	mode, _ := stringArg(args, "mode")
	if !contains(validTodoModes, mode) {
		return fmt.Sprintf("❌ Invalid mode '%s'. Valid modes: %s", mode, strings.Join(validTodoModes, ", ")), nil
	}

	todos, err := t.load()
	if err != nil {
		return fmt.Sprintf("❌ An error occurred: %s", err), nil
	}

	switch mode {
	case "create":
		return t.create(todos, args)
	case "list":
		return t.list(todos, args)
	case "complete", "modify_status", "modify_priority", "delete":
		return t.single(todos, mode, args)
	default:
		return t.bulk(todos, mode, args)
	}
}

func (t *TodoTool) load() ([]TodoItem, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var todos []TodoItem
	if err := json.Unmarshal(data, &todos); err != nil {
		logger.WarnCF("todo", "Invalid todos file, starting fresh",
			map[string]interface{}{"path": t.path, "error": err.Error()})
		return nil, nil
	}
	return todos, nil
}

func (t *TodoTool) save(todos []TodoItem) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("failed to create todo directory: %w", err)
	}
	data, err := json.MarshalIndent(todos, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.path, data, 0644)
}

// resolve finds a todo by full ID, unique prefix, or the first UUID
// segment before the hyphen. An ambiguous prefix is an error.
func resolve(todos []TodoItem, id string) (int, error) {
	for i := range todos {
		if todos[i].ID == id {
			return i, nil
		}
	}

	var prefixMatches []int
	for i := range todos {
		if strings.HasPrefix(todos[i].ID, id) {
			prefixMatches = append(prefixMatches, i)
		}
	}
	if len(prefixMatches) == 1 {
		return prefixMatches[0], nil
	}
	if len(prefixMatches) > 1 {
		return -1, fmt.Errorf("multiple todos match '%s'. Be more specific", id)
	}

	var shortMatches []int
	for i := range todos {
		if seg, _, _ := strings.Cut(todos[i].ID, "-"); seg == id {
			shortMatches = append(shortMatches, i)
		}
	}
	if len(shortMatches) > 1 {
		return -1, fmt.Errorf("multiple todos match '%s'. Be more specific", id)
	}
	if len(shortMatches) == 1 {
		return shortMatches[0], nil
	}
	return -1, nil
}

func formatTodo(todo TodoItem) string {
	statusIcon := map[string]string{
		"pending":     "⏳",
		"in_progress": "🚧",
		"completed":   "✅",
		"cancelled":   "❌",
	}[todo.Status]
	if statusIcon == "" {
		statusIcon = "⏳"
	}
	priorityIcon := map[string]string{"high": "🔴", "medium": "🟡", "low": "🟢"}[todo.Priority]
	if priorityIcon == "" {
		priorityIcon = "🟡"
	}

	created := todo.CreatedAt
	if ts, err := time.Parse(time.RFC3339, todo.CreatedAt); err == nil {
		created = ts.Format("2006-01-02 15:04")
	}

	shortID := todo.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("%s%s [%s] %s (Created: %s)", statusIcon, priorityIcon, shortID, todo.Content, created)
}

func (t *TodoTool) create(todos []TodoItem, args map[string]interface{}) (string, error) {
	content, _ := stringArg(args, "content")
	content = strings.TrimSpace(content)
	tasks := stringSliceArg(args, "tasks")

	if content == "" && len(tasks) == 0 {
		return "❌ Error: Either 'content' or 'tasks' must be provided for create mode.", nil
	}
	if content != "" && len(tasks) > 0 {
		return "❌ Error: Provide either 'content' for single todo or 'tasks' for multiple todos, not both.", nil
	}

	priority := "medium"
	if p, _ := stringArg(args, "priority"); contains(validTodoPriorities, p) {
		priority = p
	}

	contents := []string{content}
	if len(tasks) > 0 {
		contents = contents[:0]
		for _, task := range tasks {
			task = strings.TrimSpace(task)
			if task == "" {
				return "❌ Error: All tasks must be non-empty strings.", nil
			}
			contents = append(contents, task)
		}
	}

	var created []TodoItem
	for _, c := range contents {
		item := TodoItem{
			ID:        uuid.New().String(),
			Content:   c,
			Status:    "pending",
			Priority:  priority,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		todos = append(todos, item)
		created = append(created, item)
	}

	if err := t.save(todos); err != nil {
		return fmt.Sprintf("❌ An error occurred: %s", err), nil
	}

	if len(created) == 1 {
		return fmt.Sprintf("✅ Todo created successfully!\n%s", formatTodo(created[0])), nil
	}
	lines := make([]string, 0, len(created))
	for _, item := range created {
		lines = append(lines, formatTodo(item))
	}
	return fmt.Sprintf("✅ %d todos created successfully!\n\n%s", len(created), strings.Join(lines, "\n")), nil
}

func (t *TodoTool) list(todos []TodoItem, args map[string]interface{}) (string, error) {
	if len(todos) == 0 {
		return "📝 No todos found. Create your first todo to get started!", nil
	}

	filterStatus, _ := stringArg(args, "filter_status")
	if filterStatus != "" && !contains(validTodoStatuses, filterStatus) {
		return fmt.Sprintf("❌ Invalid status filter '%s'. Valid options: %s", filterStatus, strings.Join(validTodoStatuses, ", ")), nil
	}

	show := todos
	header := fmt.Sprintf("📋 All Todos (%d items):", len(todos))
	if filterStatus != "" {
		show = nil
		for _, todo := range todos {
			if todo.Status == filterStatus {
				show = append(show, todo)
			}
		}
		if len(show) == 0 {
			return fmt.Sprintf("📝 No todos found with status '%s'.", filterStatus), nil
		}
		header = fmt.Sprintf("📋 Todos with status '%s' (%d items):", filterStatus, len(show))
	}

	priorityOrder := map[string]int{"high": 0, "medium": 1, "low": 2}
	sort.SliceStable(show, func(i, j int) bool {
		pi, pj := priorityOrder[show[i].Priority], priorityOrder[show[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return show[i].CreatedAt > show[j].CreatedAt
	})

	lines := make([]string, 0, len(show))
	for _, todo := range show {
		lines = append(lines, formatTodo(todo))
	}
	return fmt.Sprintf("%s\n\n%s", header, strings.Join(lines, "\n")), nil
}

func (t *TodoTool) single(todos []TodoItem, mode string, args map[string]interface{}) (string, error) {
	if len(todos) == 0 {
		return "📝 No todos found. Create some todos first!", nil
	}

	todoID, _ := stringArg(args, "todo_id")
	todoID = strings.TrimSpace(todoID)
	if todoID == "" {
		return fmt.Sprintf("❌ Error: Todo ID is required for %s mode.", mode), nil
	}

	idx, err := resolve(todos, todoID)
	if err != nil {
		return fmt.Sprintf("❌ %s", err), nil
	}
	if idx < 0 {
		return fmt.Sprintf("❌ Todo with ID '%s' not found.", todoID), nil
	}

	switch mode {
	case "complete":
		oldStatus := todos[idx].Status
		todos[idx].Status = "completed"
		if err := t.save(todos); err != nil {
			return fmt.Sprintf("❌ An error occurred: %s", err), nil
		}
		return fmt.Sprintf("✅ Todo marked as completed!\nPrevious status: '%s'\n%s", oldStatus, formatTodo(todos[idx])), nil

	case "modify_status":
		status, _ := stringArg(args, "status")
		if !contains(validTodoStatuses, status) {
			return fmt.Sprintf("❌ Invalid status '%s'. Valid options: %s", status, strings.Join(validTodoStatuses, ", ")), nil
		}
		oldStatus := todos[idx].Status
		todos[idx].Status = status
		if err := t.save(todos); err != nil {
			return fmt.Sprintf("❌ An error occurred: %s", err), nil
		}
		return fmt.Sprintf("✅ Todo status updated from '%s' to '%s'!\n%s", oldStatus, status, formatTodo(todos[idx])), nil

	case "modify_priority":
		priority, _ := stringArg(args, "priority")
		if !contains(validTodoPriorities, priority) {
			return fmt.Sprintf("❌ Invalid priority '%s'. Valid options: %s", priority, strings.Join(validTodoPriorities, ", ")), nil
		}
		oldPriority := todos[idx].Priority
		todos[idx].Priority = priority
		if err := t.save(todos); err != nil {
			return fmt.Sprintf("❌ An error occurred: %s", err), nil
		}
		return fmt.Sprintf("✅ Todo priority updated from '%s' to '%s'!\n%s", oldPriority, priority, formatTodo(todos[idx])), nil

	default: // delete
		deleted := todos[idx]
		todos = append(todos[:idx], todos[idx+1:]...)
		if err := t.save(todos); err != nil {
			return fmt.Sprintf("❌ An error occurred: %s", err), nil
		}
		return fmt.Sprintf("🗑️ Todo deleted successfully!\nDeleted: %s", formatTodo(deleted)), nil
	}
}

func (t *TodoTool) bulk(todos []TodoItem, mode string, args map[string]interface{}) (string, error) {
	todoIDs := stringSliceArg(args, "todo_ids")
	if len(todoIDs) == 0 {
		return fmt.Sprintf("❌ Error: todo_ids parameter is required and cannot be empty for %s mode.", mode), nil
	}

	var foundIdx []int
	var invalidIDs, notFoundIDs []string
	seen := make(map[int]bool)
	for _, raw := range todoIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			invalidIDs = append(invalidIDs, "<empty>")
			continue
		}
		idx, err := resolve(todos, id)
		if err != nil {
			invalidIDs = append(invalidIDs, fmt.Sprintf("%s (%s)", id, err))
			continue
		}
		if idx < 0 {
			notFoundIDs = append(notFoundIDs, id)
			continue
		}
		if !seen[idx] {
			seen[idx] = true
			foundIdx = append(foundIdx, idx)
		}
	}

	var issues []string
	if len(invalidIDs) > 0 {
		issues = append(issues, fmt.Sprintf("Invalid IDs: %s", strings.Join(invalidIDs, ", ")))
	}
	if len(notFoundIDs) > 0 {
		issues = append(issues, fmt.Sprintf("Not found: %s", strings.Join(notFoundIDs, ", ")))
	}
	if len(foundIdx) == 0 {
		if len(issues) > 0 {
			return fmt.Sprintf("❌ No valid todos found. %s", strings.Join(issues, " | ")), nil
		}
		return "❌ No valid todos found.", nil
	}

	var results []string
	var summary string

	switch mode {
	case "bulk_complete":
		for _, idx := range foundIdx {
			oldStatus := todos[idx].Status
			todos[idx].Status = "completed"
			results = append(results, fmt.Sprintf("  • %s (was: %s)", formatTodo(todos[idx]), oldStatus))
		}
		summary = fmt.Sprintf("✅ Marked %d todo(s) as completed!", len(foundIdx))

	case "bulk_modify_status":
		status, _ := stringArg(args, "status")
		if !contains(validTodoStatuses, status) {
			return fmt.Sprintf("❌ Invalid status '%s'. Valid options: %s", status, strings.Join(validTodoStatuses, ", ")), nil
		}
		for _, idx := range foundIdx {
			oldStatus := todos[idx].Status
			todos[idx].Status = status
			results = append(results, fmt.Sprintf("  • %s (was: %s)", formatTodo(todos[idx]), oldStatus))
		}
		summary = fmt.Sprintf("✅ Updated status to '%s' for %d todo(s)!", status, len(foundIdx))

	case "bulk_modify_priority":
		priority, _ := stringArg(args, "priority")
		if !contains(validTodoPriorities, priority) {
			return fmt.Sprintf("❌ Invalid priority '%s'. Valid options: %s", priority, strings.Join(validTodoPriorities, ", ")), nil
		}
		for _, idx := range foundIdx {
			oldPriority := todos[idx].Priority
			todos[idx].Priority = priority
			results = append(results, fmt.Sprintf("  • %s (was: %s)", formatTodo(todos[idx]), oldPriority))
		}
		summary = fmt.Sprintf("✅ Updated priority to '%s' for %d todo(s)!", priority, len(foundIdx))

	default: // bulk_delete; remove highest index first so earlier indexes stay valid
		sort.Sort(sort.Reverse(sort.IntSlice(foundIdx)))
		var deletedLines []string
		for _, idx := range foundIdx {
			deletedLines = append(deletedLines, fmt.Sprintf("  • %s", formatTodo(todos[idx])))
			todos = append(todos[:idx], todos[idx+1:]...)
		}
		for i := len(deletedLines) - 1; i >= 0; i-- {
			results = append(results, deletedLines[i])
		}
		summary = fmt.Sprintf("🗑️ Deleted %d todo(s)!", len(foundIdx))
	}

	if err := t.save(todos); err != nil {
		return fmt.Sprintf("❌ An error occurred: %s", err), nil
	}

	out := summary
	if len(issues) > 0 {
		out += fmt.Sprintf("\n⚠️  Issues: %s", strings.Join(issues, " | "))
	}
	label := "Updated todos"
	switch mode {
	case "bulk_complete":
		label = "Completed todos"
	case "bulk_delete":
		label = "Deleted todos"
	}
	out += fmt.Sprintf("\n\n%s:\n%s", label, strings.Join(results, "\n"))
	return out, nil
}
