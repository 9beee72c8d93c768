package agent

import (
	"encoding/json"
	"strings"
)

// ExtractObject finds the first well-formed JSON object embedded
// anywhere in a model reply. Every opening brace is handed to a real
// JSON decoder; a candidate that fails to parse is skipped and the scan
// resumes at the next brace, so stray braces in prose or code snippets
// do not mask a later action object.
//
// It returns the decoded object, the raw JSON text, and the remaining
// free text with the object cut out and trimmed.
func ExtractObject(text string) (payload map[string]interface{}, raw string, rest string, found bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var candidate map[string]interface{}
		if err := dec.Decode(&candidate); err != nil {
			continue
		}
		end := i + int(dec.InputOffset())
		raw = text[i:end]
		rest = strings.TrimSpace(strings.TrimSpace(text[:i]) + "\n" + strings.TrimSpace(text[end:]))
		return candidate, raw, rest, true
	}
	return nil, "", strings.TrimSpace(text), false
}
