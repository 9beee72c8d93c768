package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const defaultMaxOutputLines = 120

// checkAllowedDir validates that the resolved path is within the allowed directory.
func checkAllowedDir(path, allowedDir string) (string, error) {
	var resolvedPath string
	if filepath.IsAbs(path) {
		resolvedPath = filepath.Clean(path)
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		resolvedPath = abs
	}

	if allowedDir != "" {
		allowedAbs, err := filepath.Abs(allowedDir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed directory: %w", err)
		}
		if !strings.HasPrefix(resolvedPath, allowedAbs+string(filepath.Separator)) && resolvedPath != allowedAbs {
			return "", fmt.Errorf("path %s is outside allowed directory %s", path, allowedDir)
		}
	}

	return resolvedPath, nil
}

// argument extraction helpers; JSON numbers arrive as float64.

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func boolArg(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// splitTextToLines converts file text into lines, preserving trailing
// empties so line-indexed edits round-trip exactly.
func splitTextToLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func linesToText(lines []string) string {
	return strings.Join(lines, "\n")
}

// prepareContentLines splits new content into lines. A trailing newline
// becomes a trailing empty line so it survives the join.
func prepareContentLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

func unifiedDiff(oldText, newText, filepath string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: "a/" + filepath,
		ToFile:   "b/" + filepath,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

// FSReadTool reads line-oriented snippets from a file.
type FSReadTool struct {
	allowedDir string
}

func NewFSReadTool(allowedDir string) *FSReadTool {
	return &FSReadTool{allowedDir: allowedDir}
}

func (t *FSReadTool) Name() string {
	return "fs_read"
}

func (t *FSReadTool) Description() string {
	return "Read line-oriented snippets from a file with optional range controls"
}

func (t *FSReadTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("path", String().Describe("File to read")).
		Optional("start_line", Integer().Describe("1-based line to start from when line_range is not provided").WithDefault(1)).
		Optional("end_line", Integer().Describe("Inclusive 1-based line to stop at")).
		Optional("line_range", String().Describe("Optional 'start,end' override for quick range selection")).
		Optional("include_line_numbers", Boolean().Describe("Prepend line numbers to each returned line").WithDefault(true)).
		Optional("max_lines", Integer().Describe("Hard ceiling for lines returned to keep context compact").WithDefault(defaultMaxOutputLines)).
		Build()
}

var lineRangeSep = regexp.MustCompile(`[,:-]`)

func (t *FSReadTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return "", InvalidArgs("path is required")
	}

	resolvedPath, err := checkAllowedDir(path, t.allowedDir)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolvedPath)
	if err != nil {
		return fmt.Sprintf("File not found: %s", resolvedPath), nil
	}
	if info.IsDir() {
		return fmt.Sprintf("Path is not a file: %s", resolvedPath), nil
	}

	startLine := 1
	if v, ok := intArg(args, "start_line"); ok {
		startLine = v
	}
	endLine := 0
	hasEnd := false
	if v, ok := intArg(args, "end_line"); ok {
		endLine = v
		hasEnd = true
	}
	if rangeSpec, ok := stringArg(args, "line_range"); ok && rangeSpec != "" {
		parts := lineRangeSep.Split(rangeSpec, -1)
		if len(parts) != 2 {
			return "Invalid line_range. Use 'start,end' with integers.", nil
		}
		var s, e int
		if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &s); err != nil {
			return "Invalid line_range. Use 'start,end' with integers.", nil
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &e); err != nil {
			return "Invalid line_range. Use 'start,end' with integers.", nil
		}
		startLine, endLine, hasEnd = s, e, true
	}

	if startLine < 1 {
		startLine = 1
	}
	if hasEnd && endLine < startLine {
		return "Invalid range: end_line must be greater than or equal to start_line.", nil
	}

	maxLines := defaultMaxOutputLines
	if v, ok := intArg(args, "max_lines"); ok {
		maxLines = v
	}
	if maxLines < 1 {
		maxLines = 1
	}
	if maxLines > defaultMaxOutputLines {
		maxLines = defaultMaxOutputLines
	}

	includeNumbers := boolArg(args, "include_line_numbers", true)

	file, err := os.Open(resolvedPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	index := 0
	for scanner.Scan() {
		index++
		if index < startLine {
			continue
		}
		if hasEnd && index > endLine {
			break
		}
		display := scanner.Text()
		if includeNumbers {
			display = fmt.Sprintf("%d: %s", index, display)
		}
		lines = append(lines, display)
		if len(lines) >= maxLines {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	if len(lines) == 0 {
		return "Selected range produced no content.", nil
	}

	truncated := len(lines) >= maxLines
	if hasEnd {
		truncated = truncated && endLine-startLine+1 > maxLines
	}

	snippet := strings.Join(lines, "\n")
	if truncated {
		snippet += "\n... (output truncated)"
	}
	return snippet, nil
}

// FSWriteTool writes or edits a file using line-based operations.
type FSWriteTool struct {
	allowedDir string
}

func NewFSWriteTool(allowedDir string) *FSWriteTool {
	return &FSWriteTool{allowedDir: allowedDir}
}

func (t *FSWriteTool) Name() string {
	return "fs_write"
}

func (t *FSWriteTool) Description() string {
	return "Write or edit a file using line-based operations. Modes: create, append, insert (line_number), overwrite (old_str), overwrite_range/replace (line_number, end_line)"
}

func (t *FSWriteTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("path", String().Describe("Target file path")).
		Prop("content", String().Describe("Text to write. Multiple lines are supported")).
		Optional("mode", Enum("create", "append", "overwrite", "insert", "overwrite_range", "replace").
			Describe("Editing strategy").WithDefault("append")).
		Optional("line_number", Integer().Describe("1-based line reference for insert and overwrite_range/replace modes")).
		Optional("end_line", Integer().Describe("Inclusive 1-based end line for overwrite_range/replace modes")).
		Optional("create_dirs", Boolean().Describe("Create parent directories if missing").WithDefault(true)).
		Optional("old_str", String().Describe("String to replace in overwrite mode; must uniquely match existing content")).
		Build()
}

func (t *FSWriteTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return "", InvalidArgs("path is required")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return "", InvalidArgs("content is required")
	}
	mode := "append"
	if v, ok := stringArg(args, "mode"); ok && v != "" {
		mode = v
	}

	resolvedPath, err := checkAllowedDir(path, t.allowedDir)
	if err != nil {
		return "", err
	}

	if boolArg(args, "create_dirs", true) {
		if err := os.MkdirAll(filepath.Dir(resolvedPath), 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	existingText := ""
	fileExists := false
	if data, err := os.ReadFile(resolvedPath); err == nil {
		existingText = string(data)
		fileExists = true
	}

	existingLines := splitTextToLines(existingText)
	contentLines := prepareContentLines(content)

	var newLines []string
	var summary string

	switch mode {
	case "create":
		newLines = append([]string(nil), contentLines...)
		action := "Created"
		if fileExists {
			action = "Replaced"
		}
		summary = fmt.Sprintf("%s %s with %d line(s).", action, resolvedPath, len(contentLines))

	case "append":
		newLines = append(append([]string(nil), existingLines...), contentLines...)
		summary = fmt.Sprintf("Appended %d line(s) to %s.", len(contentLines), resolvedPath)

	case "insert":
		lineNumber, ok := intArg(args, "line_number")
		if !ok {
			return "line_number is required for insert mode.", nil
		}
		idx := lineNumber - 1
		if idx < 0 {
			idx = 0
		}
		if idx > len(existingLines) {
			idx = len(existingLines)
		}
		newLines = append([]string(nil), existingLines[:idx]...)
		newLines = append(newLines, contentLines...)
		newLines = append(newLines, existingLines[idx:]...)
		summary = fmt.Sprintf("Inserted %d line(s) at line %d in %s.", len(contentLines), lineNumber, resolvedPath)

	case "overwrite":
		oldStr, _ := stringArg(args, "old_str")
		if oldStr == "" {
			return "overwrite mode requires a non-empty old_str.", nil
		}
		occurrences := strings.Count(existingText, oldStr)
		if occurrences == 0 {
			return "Provided old_str was not found in the file.", nil
		}
		if occurrences > 1 {
			return "Multiple matches found; only a unique matching str is required for overwrite mode.", nil
		}
		replaced := strings.Replace(existingText, oldStr, content, 1)
		newLines = splitTextToLines(replaced)
		summary = fmt.Sprintf("Overwrote unique match in %s.", resolvedPath)

	case "overwrite_range", "replace":
		lineNumber, okStart := intArg(args, "line_number")
		endLine, okEnd := intArg(args, "end_line")
		if !okStart || !okEnd {
			return "line_number and end_line are required for overwrite_range mode.", nil
		}
		if lineNumber < 1 || endLine < lineNumber {
			return "Invalid range for overwrite_range. Ensure 1 <= line_number <= end_line.", nil
		}
		startIdx := lineNumber - 1
		if startIdx > len(existingLines) {
			startIdx = len(existingLines)
		}
		endIdx := endLine
		if endIdx > len(existingLines) {
			endIdx = len(existingLines)
		}
		newLines = append([]string(nil), existingLines[:startIdx]...)
		newLines = append(newLines, contentLines...)
		newLines = append(newLines, existingLines[endIdx:]...)
		verb := "Overwrote"
		if mode == "replace" {
			verb = "Replaced"
		}
		summary = fmt.Sprintf("%s lines %d-%d in %s with %d line(s).", verb, lineNumber, endLine, resolvedPath, len(contentLines))

	default:
		return fmt.Sprintf("Unsupported mode '%s'.", mode), nil
	}

	newText := linesToText(newLines)
	if newText == existingText {
		return "No changes applied; resulting content matches existing file.\nDiff:\n(no diff)", nil
	}

	if err := os.WriteFile(resolvedPath, []byte(newText), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	diff := unifiedDiff(existingText, newText, resolvedPath)
	if diff != "" {
		return fmt.Sprintf("%s\n%s", summary, diff), nil
	}
	return fmt.Sprintf("%s\nDiff:\n(no diff)", summary), nil
}

// FSFindTool locates files or directories using flexible filters.
type FSFindTool struct {
	allowedDir string
}

func NewFSFindTool(allowedDir string) *FSFindTool {
	return &FSFindTool{allowedDir: allowedDir}
}

func (t *FSFindTool) Name() string {
	return "fs_find"
}

func (t *FSFindTool) Description() string {
	return "Locate files or directories by name pattern, path substring, or extension"
}

func (t *FSFindTool) Parameters() map[string]interface{} {
	return NewObject().
		Optional("name_pattern", String().Describe("Glob or regex pattern applied to the entry name")).
		Optional("contains", String().Describe("Substring that must appear in the relative path")).
		Optional("extensions", Array(String()).Describe("Optional list of file extensions ('.go', 'md')")).
		Optional("directory", String().Describe("Search root, defaults to the workspace")).
		Optional("include_dirs", Boolean().Describe("Whether to include matching directories in results").WithDefault(false)).
		Optional("use_regex", Boolean().Describe("Interpret name_pattern as a regex when true").WithDefault(false)).
		Optional("case_sensitive", Boolean().Describe("Respect case when matching").WithDefault(false)).
		Optional("max_depth", Integer().Describe("Optional depth limit relative to the search root")).
		Optional("max_results", Integer().Describe("Maximum entries to return").WithDefault(25)).
		Build()
}

func normalizeExtensions(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	out := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = true
	}
	return out
}

func (t *FSFindTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	directory := "."
	if v, ok := stringArg(args, "directory"); ok && v != "" {
		directory = v
	}
	root, err := checkAllowedDir(directory, t.allowedDir)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Sprintf("Search root not found: %s", root), nil
	}

	maxResults := 25
	if v, ok := intArg(args, "max_results"); ok && v > 0 {
		maxResults = v
	}
	maxDepth, hasMaxDepth := intArg(args, "max_depth")
	includeDirs := boolArg(args, "include_dirs", false)
	useRegex := boolArg(args, "use_regex", false)
	caseSensitive := boolArg(args, "case_sensitive", false)

	namePattern, _ := stringArg(args, "name_pattern")
	contains, _ := stringArg(args, "contains")
	exts := normalizeExtensions(stringSliceArg(args, "extensions"))

	var compiled *regexp.Regexp
	patternNorm := namePattern
	if namePattern != "" && useRegex {
		expr := namePattern
		if !caseSensitive {
			expr = "(?i)" + expr
		}
		compiled, err = regexp.Compile(expr)
		if err != nil {
			return fmt.Sprintf("Invalid regular expression: %s", err), nil
		}
	} else if !caseSensitive {
		patternNorm = strings.ToLower(namePattern)
	}

	containsNorm := contains
	if !caseSensitive {
		containsNorm = strings.ToLower(contains)
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))
		if hasMaxDepth && d.IsDir() && depth > maxDepth {
			return filepath.SkipDir
		}

		if d.IsDir() && !includeDirs {
			return nil
		}
		if !d.IsDir() && exts != nil && !exts[filepath.Ext(path)] {
			return nil
		}

		name := d.Name()
		if namePattern != "" {
			if compiled != nil {
				if !compiled.MatchString(name) {
					return nil
				}
			} else {
				candidate := name
				if !caseSensitive {
					candidate = strings.ToLower(candidate)
				}
				ok, matchErr := filepath.Match(patternNorm, candidate)
				if matchErr != nil || !ok {
					return nil
				}
			}
		}

		if contains != "" {
			relCompare := rel
			if !caseSensitive {
				relCompare = strings.ToLower(relCompare)
			}
			if !strings.Contains(relCompare, containsNorm) {
				return nil
			}
		}

		matches = append(matches, rel)
		if len(matches) >= maxResults {
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("search failed: %w", walkErr)
	}

	if len(matches) == 0 {
		return "No matching entries found.", nil
	}

	lines := make([]string, 0, len(matches)+1)
	for i, match := range matches {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, match))
	}
	if len(matches) >= maxResults {
		lines = append(lines, "... (results truncated)")
	}
	return strings.Join(lines, "\n"), nil
}

// FSSearchTool searches inside files for a pattern with optional context.
type FSSearchTool struct {
	allowedDir string
}

func NewFSSearchTool(allowedDir string) *FSSearchTool {
	return &FSSearchTool{allowedDir: allowedDir}
}

func (t *FSSearchTool) Name() string {
	return "fs_search"
}

func (t *FSSearchTool) Description() string {
	return "Search inside files for a text or regex pattern with optional context lines"
}

func (t *FSSearchTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("pattern", String().Describe("Text or regex to look for")).
		Optional("directory", String().Describe("Root directory to search")).
		Optional("file_glob", String().Describe("Optional glob restricting files (e.g. '*.go')")).
		Optional("extensions", Array(String()).Describe("Optional list of extensions to include")).
		Optional("use_regex", Boolean().Describe("Treat pattern as regex when true").WithDefault(false)).
		Optional("case_sensitive", Boolean().Describe("Respect case when matching").WithDefault(false)).
		Optional("max_matches", Integer().Describe("Upper bound on reported matches").WithDefault(40)).
		Optional("before_context", Integer().Describe("Lines of context to include before each match").WithDefault(0)).
		Optional("after_context", Integer().Describe("Lines of context to include after each match").WithDefault(0)).
		Build()
}

func (t *FSSearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	pattern, ok := stringArg(args, "pattern")
	if !ok || pattern == "" {
		return "Pattern must not be empty.", nil
	}

	directory := "."
	if v, ok := stringArg(args, "directory"); ok && v != "" {
		directory = v
	}
	root, err := checkAllowedDir(directory, t.allowedDir)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Sprintf("Search root not found: %s", root), nil
	}

	maxMatches := 40
	if v, ok := intArg(args, "max_matches"); ok && v > 0 {
		maxMatches = v
	}
	if maxMatches > defaultMaxOutputLines {
		maxMatches = defaultMaxOutputLines
	}
	beforeContext, _ := intArg(args, "before_context")
	afterContext, _ := intArg(args, "after_context")
	useRegex := boolArg(args, "use_regex", false)
	caseSensitive := boolArg(args, "case_sensitive", false)
	fileGlob, _ := stringArg(args, "file_glob")
	exts := normalizeExtensions(stringSliceArg(args, "extensions"))

	expr := pattern
	if !useRegex {
		expr = regexp.QuoteMeta(pattern)
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	matcher, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Sprintf("Invalid regular expression: %s", err), nil
	}

	var results []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if exts != nil && !exts[filepath.Ext(path)] {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if fileGlob != "" {
			ok, matchErr := filepath.Match(fileGlob, rel)
			if matchErr != nil {
				return matchErr
			}
			if !ok {
				if baseOK, _ := filepath.Match(fileGlob, filepath.Base(rel)); !baseOK {
					return nil
				}
			}
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		lines := strings.Split(string(data), "\n")

		for lineNo := 1; lineNo <= len(lines); lineNo++ {
			if !matcher.MatchString(lines[lineNo-1]) {
				continue
			}
			startCtx := lineNo - 1 - beforeContext
			if startCtx < 0 {
				startCtx = 0
			}
			endCtx := lineNo + afterContext
			if endCtx > len(lines) {
				endCtx = len(lines)
			}
			var snippet []string
			for idx := startCtx + 1; idx <= endCtx; idx++ {
				prefix := " "
				if idx == lineNo {
					prefix = "*"
				}
				clipped := strings.TrimSpace(lines[idx-1])
				if len(clipped) > 160 {
					clipped = clipped[:157] + "..."
				}
				snippet = append(snippet, fmt.Sprintf("%s%d: %s", prefix, idx, clipped))
			}
			results = append(results, rel+"\n"+strings.Join(snippet, "\n"))
			if len(results) >= maxMatches {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("search failed: %w", walkErr)
	}

	if len(results) == 0 {
		return "No matches found.", nil
	}

	output := strings.Join(results, "\n---\n")
	if len(results) >= maxMatches {
		output += "\n... (matches truncated)"
	}
	return output, nil
}
