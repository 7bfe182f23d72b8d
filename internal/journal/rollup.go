package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/model"
	"github.com/keepsake-dev/keepsake/internal/textutil"
)

var rollupLabels = map[string]string{
	model.EntryHourlyRollup:  "Hourly",
	model.EntryWeeklyRollup:  "Weekly",
	model.EntryMonthlyRollup: "Monthly",
	model.EntryYearlyRollup:  "Yearly",
}

// CreateRollup synthesizes a summary entry for the period and re-parents
// every listed child to it. Insert and re-parenting run in one
// transaction: either all children point at the rollup or none do.
// Children are never deleted here, only re-parented. An empty child list
// still produces a rollup recording the quiet period.
func (s *Store) CreateRollup(ctx context.Context, rollupType string, periodStart, periodEnd time.Time, childIDs []string) (*model.JournalEntry, error) {
	label, ok := rollupLabels[rollupType]
	if !ok {
		return nil, fmt.Errorf("invalid rollup type %q (allowed: %s, %s, %s, %s)",
			rollupType, model.EntryHourlyRollup, model.EntryWeeklyRollup,
			model.EntryMonthlyRollup, model.EntryYearlyRollup)
	}
	level := model.RollupLevels[rollupType]

	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var children []model.JournalEntry
	if len(childIDs) > 0 {
		placeholders := strings.Repeat("?,", len(childIDs)-1) + "?"
		args := make([]interface{}, len(childIDs))
		for i, id := range childIDs {
			args[i] = id
		}
		rows, err := db.QueryContext(ctx,
			selectCols+` FROM entries WHERE id IN (`+placeholders+`) ORDER BY timestamp`, args...)
		if err != nil {
			return nil, err
		}
		children, err = collectEntries(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	summary := synthesize(label, periodStart, periodEnd, children)

	// Embed outside the transaction; the provider is a network call.
	var blob []byte
	if s.embed != nil {
		if vec, err := s.embed.Embed(ctx, summary); err == nil {
			blob = embedding.EncodeVector(vec)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id := s.newID()
	now := periodEnd.UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries (id, content, entry_type, timestamp, period_start, period_end,
		                      metadata, embedding, parent_id, rollup_level, status)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?, NULL, ?, 'active')`,
		id, summary, rollupType, fmtTime(now), fmtTime(periodStart), fmtTime(periodEnd), blob, level)
	if err != nil {
		return nil, fmt.Errorf("insert rollup: %w", err)
	}

	if len(childIDs) > 0 {
		placeholders := strings.Repeat("?,", len(childIDs)-1) + "?"
		args := make([]interface{}, 0, len(childIDs)+1)
		args = append(args, id)
		for _, cid := range childIDs {
			args = append(args, cid)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE entries SET parent_id = ? WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("reparent children: %w", err)
		}
		if n, _ := res.RowsAffected(); n != int64(len(childIDs)) {
			return nil, fmt.Errorf("reparent children: %d of %d ids found", n, len(childIDs))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.Debug("rollup created",
		zap.String("type", rollupType), zap.Int("children", len(childIDs)))

	ps, pe := periodStart.UTC(), periodEnd.UTC()
	return &model.JournalEntry{
		ID:          id,
		Content:     summary,
		EntryType:   rollupType,
		Timestamp:   now,
		PeriodStart: &ps,
		PeriodEnd:   &pe,
		RollupLevel: level,
		Status:      model.EntryActive,
	}, nil
}

// synthesize builds the rollup's natural-language summary from its
// children.
func synthesize(label string, periodStart, periodEnd time.Time, children []model.JournalEntry) string {
	window := fmt.Sprintf("%s to %s",
		periodStart.UTC().Format(time.RFC3339), periodEnd.UTC().Format(time.RFC3339))

	if len(children) == 0 {
		return fmt.Sprintf("%s summary, %s: no activity recorded for this period.", label, window)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s summary, %s: %d entries.\n", label, window, len(children))
	for _, c := range children {
		fmt.Fprintf(&b, "- %s\n", textutil.Excerpt(c.Content, 120))
	}
	return strings.TrimRight(b.String(), "\n")
}
