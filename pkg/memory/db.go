package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeFormat is the timestamp format used for all SQLite datetime values.
const sqliteTimeFormat = "2006-01-02 15:04:05"

// fts5CreateTable is the DDL for the FTS5 virtual table.
const fts5CreateTable = `CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content, tags, content='memories', content_rowid='id'
)`

// fts5TriggerDDL defines the triggers that keep the FTS index in sync.
var fts5TriggerDDL = []string{
	`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
		INSERT INTO memories_fts(rowid, content, tags)
		VALUES (new.id, new.content, new.tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content, tags)
		VALUES ('delete', old.id, old.content, old.tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content, tags)
		VALUES ('delete', old.id, old.content, old.tags);
		INSERT INTO memories_fts(rowid, content, tags)
		VALUES (new.id, new.content, new.tags);
	END`,
}

// Entry is a single stored memory record.
type Entry struct {
	ID        int64
	Content   string
	Tags      []string
	Embedding []float64
	Metadata  map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store manages the SQLite-backed memory database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the memory database at dir/memory.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	dbPath := filepath.Join(dir, "memory.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DBPath returns the path to the database file.
func (s *Store) DBPath() string {
	return s.dbPath
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		content    TEXT NOT NULL,
		tags       TEXT NOT NULL DEFAULT '[]',
		embedding  TEXT,
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT (datetime('now')),
		updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	if _, err := s.db.Exec(fts5CreateTable); err != nil {
		return err
	}
	for _, stmt := range fts5TriggerDDL {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// parseTime parses a timestamp string, trying sqliteTimeFormat first then RFC3339.
func parseTime(v string) time.Time {
	if t, err := time.Parse(sqliteTimeFormat, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Time{}
}
