package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/innomightlabs/krishna/pkg/embedding"
	"github.com/innomightlabs/krishna/pkg/logger"
	"github.com/innomightlabs/krishna/pkg/memory"
)

func mapArg(args map[string]interface{}, key string) map[string]interface{} {
	v, _ := args[key].(map[string]interface{})
	return v
}

// embedOrWarn produces an embedding for new content. A failing embedding
// backend never blocks the write; the entry is stored without a vector.
func embedOrWarn(ctx context.Context, embedder embedding.Embedder, content string) []float64 {
	if embedder == nil {
		return nil
	}
	vector, err := embedder.EmbedText(ctx, content)
	if err != nil {
		logger.WarnCF("memory", "Embedding failed, storing without vector",
			map[string]interface{}{"error": err.Error()})
		return nil
	}
	return vector
}

func formatEntry(entry memory.Entry) string {
	tags := "No tags"
	if len(entry.Tags) > 0 {
		tags = strings.Join(entry.Tags, ", ")
	}
	return fmt.Sprintf("ID %d: %s | Tags: %s | %s", entry.ID, entry.Content, tags, entry.CreatedAt.Format("2006-01-02 15:04:05"))
}

// MemoryAppendTool stores a new memory entry.
type MemoryAppendTool struct {
	store    *memory.Store
	embedder embedding.Embedder
}

func NewMemoryAppendTool(store *memory.Store, embedder embedding.Embedder) *MemoryAppendTool {
	return &MemoryAppendTool{store: store, embedder: embedder}
}

func (t *MemoryAppendTool) Name() string {
	return "memory_append"
}

func (t *MemoryAppendTool) Description() string {
	return "Store a new memory entry with optional tags and metadata"
}

func (t *MemoryAppendTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("content", String().Describe("Memory content to store")).
		Optional("tags", Array(String()).Describe("Optional list of tags for categorization")).
		Optional("metadata", Map(String()).Describe("Optional metadata map")).
		Build()
}

func (t *MemoryAppendTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	content, ok := stringArg(args, "content")
	if !ok || strings.TrimSpace(content) == "" {
		return "", InvalidArgs("content is required")
	}

	vector := embedOrWarn(ctx, t.embedder, content)
	id, err := t.store.Append(content, stringSliceArg(args, "tags"), mapArg(args, "metadata"), vector)
	if err != nil {
		return "", fmt.Errorf("failed to append memory: %w", err)
	}
	return fmt.Sprintf("Memory added with ID %d", id), nil
}

// MemoryScanTool pages through stored memories in insertion order.
type MemoryScanTool struct {
	store *memory.Store
}

func NewMemoryScanTool(store *memory.Store) *MemoryScanTool {
	return &MemoryScanTool{store: store}
}

func (t *MemoryScanTool) Name() string {
	return "memory_scan"
}

func (t *MemoryScanTool) Description() string {
	return "Scan through stored memories with pagination"
}

func (t *MemoryScanTool) Parameters() map[string]interface{} {
	return NewObject().
		Optional("page", Integer().Describe("Page number to retrieve (1-based)").WithDefault(1)).
		Optional("page_size", Integer().Describe("Number of memories per page").WithDefault(10)).
		Build()
}

func (t *MemoryScanTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	page := 1
	if v, ok := intArg(args, "page"); ok {
		page = v
	}
	pageSize := 10
	if v, ok := intArg(args, "page_size"); ok {
		pageSize = v
	}

	entries, total, err := t.store.Scan(page, pageSize)
	if err != nil {
		return "", fmt.Errorf("failed to scan memories: %w", err)
	}
	if total == 0 {
		return "No memories stored yet.", nil
	}

	totalPages := (total + pageSize - 1) / pageSize
	if page < 1 || page > totalPages {
		return fmt.Sprintf("Error: Invalid page %d. Total pages: %d", page, totalPages), nil
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, formatEntry(entry))
	}
	footer := fmt.Sprintf("\nPage %d/%d | Total: %d memories", page, totalPages, total)
	return strings.Join(lines, "\n") + footer, nil
}

// MemorySearchTool performs full-text search over stored memories.
type MemorySearchTool struct {
	store *memory.Store
}

func NewMemorySearchTool(store *memory.Store) *MemorySearchTool {
	return &MemorySearchTool{store: store}
}

func (t *MemorySearchTool) Name() string {
	return "memory_search"
}

func (t *MemorySearchTool) Description() string {
	return "Search memories by keyword across content and tags with pagination"
}

func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("query", String().Describe("Search query to match against content and tags")).
		Optional("page", Integer().Describe("Page number to retrieve (1-based)").WithDefault(1)).
		Optional("page_size", Integer().Describe("Number of results per page").WithDefault(10)).
		Build()
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query, ok := stringArg(args, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return "", InvalidArgs("query is required")
	}

	page := 1
	if v, ok := intArg(args, "page"); ok {
		page = v
	}
	pageSize := 10
	if v, ok := intArg(args, "page_size"); ok {
		pageSize = v
	}

	results, total, err := t.store.Search(query, page, pageSize)
	if err != nil {
		return "", fmt.Errorf("failed to search memories: %w", err)
	}
	if total == 0 {
		return fmt.Sprintf("No memories found matching '%s'.", query), nil
	}

	totalPages := (total + pageSize - 1) / pageSize
	if page < 1 || page > totalPages {
		return fmt.Sprintf("Error: Invalid page %d. Total pages: %d", page, totalPages), nil
	}

	lines := make([]string, 0, len(results)+1)
	lines = append(lines, fmt.Sprintf("Search results for '%s'", query))
	for _, result := range results {
		lines = append(lines, formatEntry(result.Entry))
	}
	footer := fmt.Sprintf("\nPage %d/%d | Found: %d matches", page, totalPages, total)
	return strings.Join(lines, "\n") + footer, nil
}

// MemoryModifyTool rewrites an existing memory entry.
type MemoryModifyTool struct {
	store    *memory.Store
	embedder embedding.Embedder
}

func NewMemoryModifyTool(store *memory.Store, embedder embedding.Embedder) *MemoryModifyTool {
	return &MemoryModifyTool{store: store, embedder: embedder}
}

func (t *MemoryModifyTool) Name() string {
	return "memory_modify"
}

func (t *MemoryModifyTool) Description() string {
	return "Modify an existing memory entry by ID"
}

func (t *MemoryModifyTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("memory_id", Integer().Describe("ID of memory to modify")).
		Prop("new_content", String().Describe("New content for the memory")).
		Optional("new_tags", Array(String()).Describe("Optional new tags list")).
		Optional("new_metadata", Map(String()).Describe("Optional new metadata map")).
		Build()
}

func (t *MemoryModifyTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	id, ok := intArg(args, "memory_id")
	if !ok {
		return "", InvalidArgs("memory_id is required")
	}
	newContent, ok := stringArg(args, "new_content")
	if !ok || strings.TrimSpace(newContent) == "" {
		return "", InvalidArgs("new_content is required")
	}

	vector := embedOrWarn(ctx, t.embedder, newContent)
	err := t.store.Modify(int64(id), newContent, stringSliceArg(args, "new_tags"), mapArg(args, "new_metadata"), vector)
	if err != nil {
		return fmt.Sprintf("Error: %s", err), nil
	}
	return fmt.Sprintf("Memory %d updated successfully", id), nil
}

// MemoryDeleteTool removes memories by ID or by content substring.
type MemoryDeleteTool struct {
	store *memory.Store
}

func NewMemoryDeleteTool(store *memory.Store) *MemoryDeleteTool {
	return &MemoryDeleteTool{store: store}
}

func (t *MemoryDeleteTool) Name() string {
	return "memory_delete"
}

func (t *MemoryDeleteTool) Description() string {
	return "Delete memories by ID or by matching content text"
}

func (t *MemoryDeleteTool) Parameters() map[string]interface{} {
	return NewObject().
		Optional("memory_id", Integer().Describe("ID of memory to delete")).
		Optional("content_text", String().Describe("Text content to match for deletion")).
		Build()
}

func (t *MemoryDeleteTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if id, ok := intArg(args, "memory_id"); ok {
		deleted := t.store.Delete(int64(id))
		if deleted == 0 {
			return fmt.Sprintf("Error: No memories found matching ID %d", id), nil
		}
		return fmt.Sprintf("Deleted %d memory(ies) matching ID %d", deleted, id), nil
	}

	if contentText, ok := stringArg(args, "content_text"); ok && contentText != "" {
		deleted := t.store.DeleteByContent(contentText)
		if deleted == 0 {
			return fmt.Sprintf("Error: No memories found matching content containing '%s'", contentText), nil
		}
		return fmt.Sprintf("Deleted %d memory(ies) matching content containing '%s'", deleted, contentText), nil
	}

	return "Error: Must provide either memory_id or content_text", nil
}
