package journal

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/model"
)

// SearchParams holds parameters for Search.
type SearchParams struct {
	Query string
	Start *time.Time
	End   *time.Time
	Limit int
}

// Hit is a search result. Distance is set only when the vector path
// ranked it; the rest of the shape is identical across ranking paths.
type Hit struct {
	model.JournalEntry
	Distance *float64 `json:"distance,omitempty"`
}

// Search returns active entries in the time window ranked by, in order of
// preference: vector distance to the query embedding, FTS relevance, then
// substring match recency. All paths apply the same window filter.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]Hit, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	db, fts, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if s.embed != nil {
		hits, ok, err := s.searchVector(ctx, db, p, limit)
		if err != nil {
			return nil, err
		}
		if ok {
			return hits, nil
		}
		// Provider down or nothing embedded yet; use the text paths.
	}

	if fts {
		hits, err := searchFTS(ctx, db, p, limit)
		if err == nil {
			return hits, nil
		}
		s.log.Debug("fts search failed, falling back to substring",
			zap.String("query", p.Query), zap.Error(err))
	}

	return searchLike(ctx, db, p, limit)
}

// searchVector ranks window entries by cosine distance to the query
// embedding. The second return is false when the vector path cannot serve
// the query (provider failure or no stored embeddings in the window).
func (s *Store) searchVector(ctx context.Context, db *sql.DB, p SearchParams, limit int) ([]Hit, bool, error) {
	qvec, err := s.embed.Embed(ctx, p.Query)
	if err != nil {
		s.log.Debug("query embedding failed, falling back to text search", zap.Error(err))
		return nil, false, nil
	}

	where, args := windowFilter(p.Start, p.End)
	where = append(where, "embedding IS NOT NULL")

	rows, err := db.QueryContext(ctx,
		selectCols+` FROM entries WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		e, blob, err := scanEntry(rows)
		if err != nil {
			return nil, false, err
		}
		vec := embedding.DecodeVector(blob)
		if vec == nil {
			continue
		}
		d := embedding.CosineDistance(qvec, vec)
		hits = append(hits, Hit{JournalEntry: e, Distance: &d})
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(hits) == 0 {
		return nil, false, nil
	}

	sort.Slice(hits, func(i, j int) bool { return *hits[i].Distance < *hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, true, nil
}

func searchFTS(ctx context.Context, db *sql.DB, p SearchParams, limit int) ([]Hit, error) {
	where, args := windowFilter(p.Start, p.End)
	for i := range where {
		where[i] = "e." + where[i]
	}
	where = append([]string{"f MATCH ?"}, where...)
	args = append([]interface{}{ftsQuery(p.Query)}, args...)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx,
		`SELECT e.id, e.content, e.entry_type, e.timestamp, e.period_start, e.period_end,
		        e.metadata, e.embedding, e.parent_id, e.rollup_level, e.status
		 FROM entries e
		 JOIN entries_fts f ON f.rowid = e.rowid
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY f.rank LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHits(rows)
}

func searchLike(ctx context.Context, db *sql.DB, p SearchParams, limit int) ([]Hit, error) {
	where, args := windowFilter(p.Start, p.End)
	where = append(where, "lower(content) LIKE ?")
	args = append(args, "%"+strings.ToLower(p.Query)+"%", limit)

	rows, err := db.QueryContext(ctx,
		selectCols+` FROM entries WHERE `+strings.Join(where, " AND ")+
			` ORDER BY timestamp DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHits(rows)
}

func collectHits(rows *sql.Rows) ([]Hit, error) {
	var hits []Hit
	for rows.Next() {
		e, _, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{JournalEntry: e})
	}
	return hits, rows.Err()
}

// ftsQuery quotes each term so user text never hits FTS5 operator syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
