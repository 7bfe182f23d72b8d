package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/keepsake-dev/keepsake/internal/model"
	"github.com/keepsake-dev/keepsake/internal/textutil"
)

// SearchParams holds parameters for Search.
type SearchParams struct {
	Query         string
	Limit         int
	MinConfidence float64
}

// Search returns current, active memories matching the query, ranked by
// FTS relevance when the index is available and by recency on the
// substring fallback. Both paths honor MinConfidence.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	db, fts, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if fts {
		results, err := searchFTS(ctx, db, p.Query, p.MinConfidence, limit)
		if err == nil {
			return results, nil
		}
		// Query text the FTS parser rejects falls through to substring scan.
		s.log.Debug("fts search failed, falling back to substring",
			zap.String("query", p.Query), zap.Error(err))
	}

	return searchLike(ctx, db, p.Query, p.MinConfidence, limit)
}

const selectColsM = `SELECT m.id, m.owner_type, m.owner_id, m.memory_type, m.key, m.content, m.confidence,
       m.status, m.valid_from, m.valid_to, m.version, m.history, m.source_message_id, m.created_at, m.updated_at`

func searchFTS(ctx context.Context, db *sql.DB, query string, minConfidence float64, limit int) ([]model.Memory, error) {
	rows, err := db.QueryContext(ctx,
		selectColsM+`
		 FROM memories m
		 JOIN memories_fts f ON f.rowid = m.rowid
		 WHERE f MATCH ?
		   AND m.valid_to IS NULL AND m.status = 'active' AND m.confidence >= ?
		 ORDER BY f.rank LIMIT ?`,
		ftsQuery(query), minConfidence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemories(rows)
}

func searchLike(ctx context.Context, db *sql.DB, query string, minConfidence float64, limit int) ([]model.Memory, error) {
	like := "%" + strings.ToLower(query) + "%"
	rows, err := db.QueryContext(ctx,
		selectCols+`
		 FROM memories
		 WHERE valid_to IS NULL AND status = 'active' AND confidence >= ?
		   AND (lower(content) LIKE ? OR lower(coalesce(key, '')) LIKE ?)
		 ORDER BY updated_at DESC LIMIT ?`,
		minConfidence, like, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemories(rows)
}

// ftsQuery quotes each term so user text never hits FTS5 operator syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// DedupeByContent returns an active current memory whose normalized
// content equals the normalized input, nil when the fact is new. Callers
// check this before creating keyless memories.
func (s *Store) DedupeByContent(ctx context.Context, content string) (*model.Memory, error) {
	normalized := textutil.Normalize(content)
	if normalized == "" {
		return nil, nil
	}

	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	row := db.QueryRowContext(ctx,
		selectCols+` FROM memories
		 WHERE normalized_content = ? AND valid_to IS NULL AND status = 'active'
		 LIMIT 1`, normalized)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Stats holds memory store counts for the stats command.
type Stats struct {
	TotalRows   int `json:"total_rows"`
	CurrentRows int `json:"current_rows"`
	ActiveRows  int `json:"active_rows"`
	Keys        int `json:"keys"`
}

// Stats returns row counts across all versions.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	st := &Stats{}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.TotalRows); err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE valid_to IS NULL`).Scan(&st.CurrentRows)
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE valid_to IS NULL AND status = 'active'`).Scan(&st.ActiveRows)
	db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT key) FROM memories WHERE key IS NOT NULL`).Scan(&st.Keys)
	return st, nil
}
