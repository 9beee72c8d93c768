package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/innomightlabs/krishna/pkg/logger"
)

// debounceWindow suppresses repeat events for the same file and kind;
// editors commonly fire several writes per save.
const debounceWindow = 500 * time.Millisecond

var defaultIgnorePatterns = []string{".git/*"}

// Metadata describes one registered watcher.
type Metadata struct {
	WatcherID      string    `json:"watcher_id"`
	Path           string    `json:"path"`
	Description    string    `json:"description"`
	ActionPrompt   string    `json:"action_prompt"`
	IsActive       bool      `json:"is_active"`
	Patterns       []string  `json:"patterns"`
	IgnorePatterns []string  `json:"ignore_patterns"`
	Recursive      bool      `json:"recursive"`
	CreatedAt      time.Time `json:"created_at"`
}

// Callback receives each matching file event. It runs on the watcher's
// own event goroutine, serialized per watcher.
type Callback func(meta Metadata, eventType, path string)

type instance struct {
	meta Metadata
	fsw  *fsnotify.Watcher
}

// Manager owns a set of fsnotify-backed file watchers addressed by ID.
type Manager struct {
	mu       sync.Mutex
	watchers map[string]*instance
}

func NewManager() *Manager {
	return &Manager{watchers: make(map[string]*instance)}
}

// StartWatcher registers and starts a watcher over path. With recursive
// set, existing subdirectories are watched too and directories created
// later are picked up from their create events.
func (m *Manager) StartWatcher(path string, patterns, ignorePatterns []string, recursive bool, actionPrompt, description string, callback Callback) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("watch path does not exist: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("watch path %s is not a directory", path)
	}
	if ignorePatterns == nil {
		ignorePatterns = defaultIgnorePatterns
	}
	if callback == nil {
		callback = func(meta Metadata, eventType, eventPath string) {
			logger.InfoCF("watcher", "File event",
				map[string]interface{}{"event": eventType, "path": eventPath})
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := addWatchTree(fsw, path, recursive); err != nil {
		fsw.Close()
		return "", err
	}

	inst := &instance{
		meta: Metadata{
			WatcherID:      uuid.New().String(),
			Path:           path,
			Description:    description,
			ActionPrompt:   actionPrompt,
			IsActive:       true,
			Patterns:       patterns,
			IgnorePatterns: ignorePatterns,
			Recursive:      recursive,
			CreatedAt:      time.Now().UTC(),
		},
		fsw: fsw,
	}

	m.mu.Lock()
	m.watchers[inst.meta.WatcherID] = inst
	m.mu.Unlock()

	go m.loop(inst, callback)

	logger.InfoCF("watcher", "Watcher started",
		map[string]interface{}{"watcher_id": inst.meta.WatcherID, "path": path, "recursive": recursive})
	return inst.meta.WatcherID, nil
}

// StopWatcher stops and removes a watcher. False when the ID is
// unknown or the watcher was already stopped.
func (m *Manager) StopWatcher(watcherID string) bool {
	m.mu.Lock()
	inst, ok := m.watchers[watcherID]
	if ok {
		delete(m.watchers, watcherID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	inst.fsw.Close()
	logger.InfoCF("watcher", "Watcher stopped",
		map[string]interface{}{"watcher_id": watcherID})
	return true
}

// StopAll stops every watcher and returns how many were running.
func (m *Manager) StopAll() int {
	m.mu.Lock()
	stopped := make([]*instance, 0, len(m.watchers))
	for _, inst := range m.watchers {
		stopped = append(stopped, inst)
	}
	m.watchers = make(map[string]*instance)
	m.mu.Unlock()

	for _, inst := range stopped {
		inst.fsw.Close()
	}
	return len(stopped)
}

// ListWatchers returns metadata for every registered watcher.
func (m *Manager) ListWatchers() []Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Metadata, 0, len(m.watchers))
	for _, inst := range m.watchers {
		out = append(out, inst.meta)
	}
	return out
}

// GetWatcher returns one watcher's metadata.
func (m *Manager) GetWatcher(watcherID string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.watchers[watcherID]
	if !ok {
		return Metadata{}, false
	}
	return inst.meta, true
}

// Count reports the number of registered watchers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *Manager) loop(inst *instance, callback Callback) {
	lastFired := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-inst.fsw.Events:
			if !ok {
				return
			}
			m.handleEvent(inst, event, callback, lastFired)
		case err, ok := <-inst.fsw.Errors:
			if !ok {
				return
			}
			logger.WarnCF("watcher", "Watcher error",
				map[string]interface{}{"watcher_id": inst.meta.WatcherID, "error": err.Error()})
		}
	}
}

func (m *Manager) handleEvent(inst *instance, event fsnotify.Event, callback Callback, lastFired map[string]time.Time) {
	eventType := opName(event.Op)
	if eventType == "" {
		return
	}

	// Directory events are not surfaced; a created directory extends
	// the watch tree when the watcher is recursive.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if eventType == "created" && inst.meta.Recursive {
			if err := inst.fsw.Add(event.Name); err != nil {
				logger.WarnCF("watcher", "Failed to extend watch tree",
					map[string]interface{}{"path": event.Name, "error": err.Error()})
			}
		}
		return
	}

	if !shouldProcess(inst.meta, event.Name) {
		return
	}

	key := eventType + "|" + event.Name
	now := time.Now()
	if fired, ok := lastFired[key]; ok && now.Sub(fired) < debounceWindow {
		return
	}
	lastFired[key] = now

	logger.InfoCF("watcher", "File event detected",
		map[string]interface{}{"watcher_id": inst.meta.WatcherID, "event": eventType, "path": event.Name})
	callback(inst.meta, eventType, event.Name)
}

func addWatchTree(fsw *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "created"
	case op.Has(fsnotify.Write):
		return "modified"
	case op.Has(fsnotify.Remove):
		return "deleted"
	case op.Has(fsnotify.Rename):
		return "moved"
	}
	return ""
}

// shouldProcess applies ignore patterns first, then include patterns.
// Patterns match against both the base name and the path relative to
// the watch root; an empty include list admits everything.
func shouldProcess(meta Metadata, filePath string) bool {
	name := filepath.Base(filePath)
	rel, err := filepath.Rel(meta.Path, filePath)
	if err != nil {
		rel = filePath
	}

	for _, pattern := range meta.IgnorePatterns {
		if matchGlob(pattern, name) || matchGlob(pattern, rel) {
			return false
		}
	}
	if len(meta.Patterns) == 0 {
		return true
	}
	for _, pattern := range meta.Patterns {
		if matchGlob(pattern, name) || matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, value string) bool {
	matched, err := filepath.Match(pattern, value)
	return err == nil && matched
}
