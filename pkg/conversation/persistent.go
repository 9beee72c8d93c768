package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/innomightlabs/krishna/pkg/logger"
)

// PersistentWindowManager is a sliding window backed by an append-only
// NDJSON log: one JSON object per line, UTF-8, single trailing newline.
//
// The manager tracks how many leading messages are already on disk
// (persisted <= len(messages)); Finalize appends only the suffix beyond
// that cursor and never rewrites flushed history, so a crash loses at
// most the messages added since the last Finalize.
type PersistentWindowManager struct {
	path      string
	messages  []Message
	persisted int
}

// NewPersistentWindowManager opens (or creates) the log at path. An
// existing log is decoded record by record, tolerating several JSON
// objects concatenated on one physical line, and then rewritten once to
// normalize the on-disk format.
func NewPersistentWindowManager(path string) (*PersistentWindowManager, error) {
	m := &PersistentWindowManager{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("conversation: open log %s: %w", path, err)
	}

	msgs, decodeErr := decodeRecords(data)
	if decodeErr != nil {
		logger.WarnCF("conversation", "Conversation log is partially corrupt; keeping decodable prefix",
			map[string]interface{}{
				"path":   path,
				"loaded": len(msgs),
				"error":  decodeErr.Error(),
			})
	}

	m.messages = msgs
	m.persisted = len(msgs)

	if err := m.rewrite(); err != nil {
		return nil, err
	}

	return m, nil
}

// decodeRecords reads concatenated JSON objects greedily. Newlines are
// insignificant on load; writing always produces exactly one object per
// line.
func decodeRecords(data []byte) ([]Message, error) {
	var msgs []Message
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// rewrite replaces the on-disk log with the normalized form of the full
// in-memory log. Only the constructor uses it.
func (m *PersistentWindowManager) rewrite() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("conversation: create log dir: %w", err)
	}

	var buf bytes.Buffer
	for _, msg := range m.messages {
		line, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("conversation: encode message: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	return os.WriteFile(m.path, buf.Bytes(), 0644)
}

func (m *PersistentWindowManager) Add(msg Message) {
	m.messages = append(m.messages, msg)
}

// Fetch returns the most recent windowSize messages, excluding
// system-role corrective chatter.
func (m *PersistentWindowManager) Fetch(windowSize int) []Message {
	filtered := make([]Message, 0, len(m.messages))
	for _, msg := range m.messages {
		if msg.Role == RoleSystem {
			continue
		}
		filtered = append(filtered, msg)
	}
	return tail(filtered, windowSize)
}

// Finalize appends the messages beyond the persisted cursor. Calling it
// again with nothing new performs no writes.
func (m *PersistentWindowManager) Finalize() error {
	if m.persisted >= len(m.messages) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("conversation: create log dir: %w", err)
	}

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("conversation: open log for append: %w", err)
	}
	defer f.Close()

	// Repair a missing trailing newline before appending so two records
	// never share a line. A fresh or normalized file already ends in one.
	if info, err := os.Stat(m.path); err == nil && info.Size() > 0 {
		tailByte := make([]byte, 1)
		if rf, rerr := os.Open(m.path); rerr == nil {
			if _, rerr = rf.ReadAt(tailByte, info.Size()-1); rerr == nil && tailByte[0] != '\n' {
				if _, werr := f.WriteString("\n"); werr != nil {
					return fmt.Errorf("conversation: repair trailing newline: %w", werr)
				}
			}
			rf.Close()
		}
	}

	var buf bytes.Buffer
	for _, msg := range m.messages[m.persisted:] {
		line, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("conversation: encode message: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("conversation: append log: %w", err)
	}

	appended := len(m.messages) - m.persisted
	m.persisted = len(m.messages)

	logger.DebugCF("conversation", "Conversation log flushed",
		map[string]interface{}{
			"path":     m.path,
			"appended": appended,
			"total":    m.persisted,
		})

	return nil
}

// Len reports the total number of in-memory messages.
func (m *PersistentWindowManager) Len() int {
	return len(m.messages)
}

// PersistedCount reports how many leading messages are flushed to disk.
func (m *PersistentWindowManager) PersistedCount() int {
	return m.persisted
}
