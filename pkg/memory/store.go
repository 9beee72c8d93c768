package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

func encodeMetadata(metadata map[string]interface{}) string {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	data, _ := json.Marshal(metadata)
	return string(data)
}

func encodeEmbedding(embedding []float64) interface{} {
	if len(embedding) == 0 {
		return nil
	}
	data, _ := json.Marshal(embedding)
	return string(data)
}

// Append inserts a new memory entry and returns its assigned ID.
func (s *Store) Append(content string, tags []string, metadata map[string]interface{}, embedding []float64) (int64, error) {
	now := time.Now().UTC().Format(sqliteTimeFormat)
	result, err := s.db.Exec(`
		INSERT INTO memories (content, tags, embedding, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, content, encodeTags(tags), encodeEmbedding(embedding), encodeMetadata(metadata), now, now)
	if err != nil {
		return 0, fmt.Errorf("append memory: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append memory: %w", err)
	}
	return id, nil
}

// Get retrieves a memory entry by ID. Returns nil if not found.
func (s *Store) Get(id int64) *Entry {
	row := s.db.QueryRow(`
		SELECT id, content, tags, embedding, metadata, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)
	entry, err := scanEntry(row)
	if err != nil {
		return nil
	}
	return entry
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var tags, metadata, createdAt, updatedAt string
	var embedding sql.NullString
	if err := row.Scan(&entry.ID, &entry.Content, &tags, &embedding, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(tags), &entry.Tags)
	_ = json.Unmarshal([]byte(metadata), &entry.Metadata)
	if embedding.Valid {
		_ = json.Unmarshal([]byte(embedding.String), &entry.Embedding)
	}
	entry.CreatedAt = parseTime(createdAt)
	entry.UpdatedAt = parseTime(updatedAt)
	return &entry, nil
}

func decodeInto(entry *Entry, tags, metadata string, embedding *string) {
	_ = json.Unmarshal([]byte(tags), &entry.Tags)
	_ = json.Unmarshal([]byte(metadata), &entry.Metadata)
	if embedding != nil {
		_ = json.Unmarshal([]byte(*embedding), &entry.Embedding)
	}
}

// Scan returns one page of entries ordered by ID, plus the total count.
func (s *Store) Scan(page, pageSize int) ([]Entry, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	total := s.Count()

	rows, err := s.db.Query(`
		SELECT id, content, tags, embedding, metadata, created_at, updated_at
		FROM memories ORDER BY id LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("scan memories: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, total, rows.Err()
}

// Modify updates an existing entry's content and optionally its tags,
// metadata, and embedding. The updated_at timestamp always advances.
func (s *Store) Modify(id int64, content string, tags []string, metadata map[string]interface{}, embedding []float64) error {
	sets := []string{"content = ?", "updated_at = ?"}
	args := []interface{}{content, time.Now().UTC().Format(sqliteTimeFormat)}
	if tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, encodeTags(tags))
	}
	if metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, encodeMetadata(metadata))
	}
	if embedding != nil {
		sets = append(sets, "embedding = ?")
		args = append(args, encodeEmbedding(embedding))
	}
	args = append(args, id)

	result, err := s.db.Exec(
		fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("modify memory: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("memory with ID %d not found", id)
	}
	return nil
}

// Delete removes an entry by ID. Returns the number of deleted rows.
func (s *Store) Delete(id int64) int {
	result, err := s.db.Exec("DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return 0
	}
	rows, _ := result.RowsAffected()
	return int(rows)
}

// DeleteByContent removes every entry whose content contains the given
// substring. Returns the number of deleted rows.
func (s *Store) DeleteByContent(substring string) int {
	result, err := s.db.Exec(
		"DELETE FROM memories WHERE instr(content, ?) > 0", substring)
	if err != nil {
		return 0
	}
	rows, _ := result.RowsAffected()
	return int(rows)
}

// Count returns the total number of memory entries.
func (s *Store) Count() int {
	var count int
	s.db.QueryRow("SELECT COUNT(*) FROM memories").Scan(&count)
	return count
}
