package conversation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPersistent_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")

	m, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatalf("NewPersistentWindowManager: %v", err)
	}

	originals := []Message{
		NewMessage(RoleUser, "hello"),
		NewMessage(RoleAssistant, "hi there"),
		NewMessage(RoleTool, "file written"),
		NewMessage(RoleUser, "thanks"),
	}
	for _, msg := range originals {
		m.Add(msg)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	reloaded, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	got := reloaded.Fetch(len(originals))
	if len(got) != len(originals) {
		t.Fatalf("fetched %d messages, want %d", len(got), len(originals))
	}
	for i, msg := range got {
		if msg.Role != originals[i].Role || msg.Content != originals[i].Content {
			t.Errorf("message %d = {%s %q}, want {%s %q}",
				i, msg.Role, msg.Content, originals[i].Role, originals[i].Content)
		}
	}
}

func TestPersistent_FetchExcludesSystem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	m, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatal(err)
	}

	m.Add(NewMessage(RoleUser, "question"))
	m.Add(NewMessage(RoleSystem, "corrective note"))
	m.Add(NewMessage(RoleAssistant, "answer"))

	got := m.Fetch(10)
	if len(got) != 2 {
		t.Fatalf("fetched %d messages, want 2", len(got))
	}
	for _, msg := range got {
		if msg.Role == RoleSystem {
			t.Errorf("system message leaked into fetch: %q", msg.Content)
		}
	}
}

func TestPersistent_FinalizeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	m, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatal(err)
	}

	m.Add(NewMessage(RoleUser, "one"))
	m.Add(NewMessage(RoleAssistant, "two"))
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}

	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Error("second Finalize with no new messages modified the file")
	}
}

func TestPersistent_AppendsOnlySuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	m, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatal(err)
	}

	m.Add(NewMessage(RoleUser, "first"))
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	if m.PersistedCount() != 1 {
		t.Fatalf("PersistedCount = %d, want 1", m.PersistedCount())
	}

	m.Add(NewMessage(RoleAssistant, "second"))
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("log has %d lines, want 2:\n%s", len(lines), data)
	}
	if strings.Count(string(data), `"first"`) != 1 {
		t.Error("already-persisted record was rewritten")
	}
}

func TestPersistent_SingleTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	m, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatal(err)
	}
	m.Add(NewMessage(RoleUser, "hello"))
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	m.Add(NewMessage(RoleAssistant, "hi"))
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("log does not end with a newline")
	}
	if strings.HasSuffix(string(data), "\n\n") {
		t.Error("log ends with a doubled newline")
	}
}

func TestPersistent_LoadsConcatenatedObjectsOnOneLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	raw := `{"role":"user","content":"a","created_at":"2025-01-01T00:00:00Z"}{"role":"assistant","content":"b","created_at":"2025-01-01T00:00:01Z"}` + "\n"
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatalf("NewPersistentWindowManager: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("loaded %d messages, want 2", m.Len())
	}

	// The normalization pass rewrites one object per line.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("normalized log has %d lines, want 2", len(lines))
	}
}

func TestPersistent_RepairsMissingTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	m, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatal(err)
	}
	m.Add(NewMessage(RoleUser, "hello"))
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}

	// Chop the trailing newline to simulate a torn write.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-1], 0644); err != nil {
		t.Fatal(err)
	}

	m.Add(NewMessage(RoleAssistant, "hi"))
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewPersistentWindowManager(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 2 {
		t.Errorf("loaded %d messages after repair, want 2", reloaded.Len())
	}
}
