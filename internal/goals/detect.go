package goals

import (
	"context"
	"database/sql"
	"time"
)

// DetectStagnant returns planned goals with no progress activity at all
// in the last maxAge window. Goals that have never logged progress are
// measured from creation.
func (s *Store) DetectStagnant(ctx context.Context, now time.Time, maxAge time.Duration) ([]string, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cutoff := fmtTime(now.Add(-maxAge))
	rows, err := db.QueryContext(ctx,
		`SELECT g.id
		 FROM goals g
		 LEFT JOIN goal_progress p ON p.goal_id = g.id
		 WHERE g.status = 'planned'
		 GROUP BY g.id
		 HAVING COALESCE(MAX(p.timestamp), g.created_at) < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// DetectStalledProgress returns planned goals that did log progress at
// some point but have gone quiet since the cutoff. Unlike DetectStagnant
// it ignores goals that never started.
func (s *Store) DetectStalledProgress(ctx context.Context, now time.Time, maxAge time.Duration) ([]string, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cutoff := fmtTime(now.Add(-maxAge))
	rows, err := db.QueryContext(ctx,
		`SELECT g.id
		 FROM goals g
		 JOIN goal_progress p ON p.goal_id = g.id
		 WHERE g.status = 'planned' AND g.progress < 100
		 GROUP BY g.id
		 HAVING MAX(p.timestamp) < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// DetectUrgent returns planned goals whose target date falls within the
// next `window` and whose progress is still below minProgress.
func (s *Store) DetectUrgent(ctx context.Context, now time.Time, window time.Duration, minProgress float64) ([]string, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id FROM goals
		 WHERE status = 'planned'
		   AND target_date IS NOT NULL
		   AND target_date <= ?
		   AND progress < ?
		 ORDER BY target_date ASC`,
		fmtTime(now.Add(window)), minProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// DetectContradictions would flag goals whose recent journal activity
// conflicts with their stated direction. That needs an LLM pass over the
// journal, which this layer does not have; it returns nothing until the
// analysis pipeline lands.
func (s *Store) DetectContradictions(ctx context.Context) ([]string, error) {
	return nil, nil
}

// DetectExplicitChanges would surface goals the user has explicitly
// asked to change in conversation. Same story as DetectContradictions:
// nothing to run on at this layer, so it reports nothing.
func (s *Store) DetectExplicitChanges(ctx context.Context) ([]string, error) {
	return nil, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
