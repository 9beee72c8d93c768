package memory

import (
	"fmt"
	"strings"
)

// SearchResult is a search hit with its BM25 rank.
type SearchResult struct {
	Entry Entry
	Rank  float64
}

// Search performs FTS5 full-text search over content and tags with BM25
// ranking, paginated. Returns one page of results plus the total match
// count.
func (s *Store) Search(query string, page, pageSize int) ([]SearchResult, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	ftsQuery := sanitizeFTS5Query(query)
	if ftsQuery == "" {
		return nil, 0, nil
	}

	var total int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM memories_fts WHERE memories_fts MATCH ?", ftsQuery,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search matches: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT m.id, m.content, m.tags, m.embedding, m.metadata, m.created_at, m.updated_at,
			rank
		FROM memories_fts
		JOIN memories m ON memories_fts.rowid = m.id
		WHERE memories_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?`, ftsQuery, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var result SearchResult
		var tags, metadata, createdAt, updatedAt string
		var embedding *string
		if err := rows.Scan(
			&result.Entry.ID, &result.Entry.Content, &tags, &embedding, &metadata,
			&createdAt, &updatedAt, &result.Rank,
		); err != nil {
			continue
		}
		decodeInto(&result.Entry, tags, metadata, embedding)
		result.Entry.CreatedAt = parseTime(createdAt)
		result.Entry.UpdatedAt = parseTime(updatedAt)
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return results, total, fmt.Errorf("scan search results: %w", err)
	}
	return results, total, nil
}

// fts5Replacer removes FTS5 special characters from query tokens.
var fts5Replacer = strings.NewReplacer(
	"*", "", "\"", "", "(", "", ")", "",
	":", "", "^", "", "{", "", "}", "",
)

// sanitizeFTS5Query escapes special FTS5 characters and wraps tokens in quotes.
func sanitizeFTS5Query(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}

	tokens := strings.Fields(query)
	var quoted []string
	for _, t := range tokens {
		t = fts5Replacer.Replace(t)
		t = strings.TrimSpace(t)
		if t != "" {
			quoted = append(quoted, "\""+t+"\"")
		}
	}

	if len(quoted) == 0 {
		return ""
	}

	// Join with OR for broader matching
	return strings.Join(quoted, " OR ")
}
