package heartbeat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewService_ValidatesCron(t *testing.T) {
	if _, err := NewService(t.TempDir(), 0, "not a cron", true); err == nil {
		t.Error("expected an error for a bad cron expression")
	}
	if _, err := NewService(t.TempDir(), 0, "*/5 * * * *", true); err != nil {
		t.Errorf("valid cron rejected: %v", err)
	}
}

func TestService_StartRequiresEnabled(t *testing.T) {
	s, err := NewService(t.TempDir(), time.Hour, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err == nil {
		t.Error("disabled service started without error")
	}
}

func TestService_StartStopIdempotent(t *testing.T) {
	s, err := NewService(t.TempDir(), time.Hour, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
	s.Stop()
	s.Stop()
}

func TestService_BuildPromptIncludesNotes(t *testing.T) {
	workspace := t.TempDir()
	notesDir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(notesDir, "HEARTBEAT.md"), []byte("- ship the release"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewService(workspace, time.Hour, "", true)
	if err != nil {
		t.Fatal(err)
	}
	prompt := s.buildPrompt()
	if !strings.Contains(prompt, "- ship the release") {
		t.Error("prompt missing the notes file content")
	}
	if !strings.Contains(prompt, okSentinel) {
		t.Error("prompt missing the OK sentinel instruction")
	}
}

func TestService_SentinelSuppressesDelivery(t *testing.T) {
	s, err := NewService(t.TempDir(), time.Hour, "", true)
	if err != nil {
		t.Fatal(err)
	}
	var delivered []string
	s.SetDelivery(func(response string) { delivered = append(delivered, response) })
	s.SetOnHeartbeat(func(prompt string) (string, error) { return "All quiet. HEARTBEAT_OK", nil })

	s.checkHeartbeat()
	if len(delivered) != 0 {
		t.Errorf("sentinel response delivered anyway: %q", delivered)
	}

	s.SetOnHeartbeat(func(prompt string) (string, error) { return "The build is red.", nil })
	s.checkHeartbeat()
	if len(delivered) != 1 || delivered[0] != "The build is red." {
		t.Errorf("delivered = %q", delivered)
	}
}

func TestService_CallbackErrorIsLogged(t *testing.T) {
	workspace := t.TempDir()
	s, err := NewService(workspace, time.Hour, "", true)
	if err != nil {
		t.Fatal(err)
	}
	s.SetOnHeartbeat(func(prompt string) (string, error) { return "", fmt.Errorf("backend down") })

	s.checkHeartbeat()

	data, err := os.ReadFile(filepath.Join(workspace, "memory", "heartbeat.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "Heartbeat error: backend down") {
		t.Errorf("log = %q", string(data))
	}
}
