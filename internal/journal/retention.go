package journal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/keepsake-dev/keepsake/internal/config"
	"github.com/keepsake-dev/keepsake/internal/model"
)

// RetentionConfig returns a copy of the per-tier retention windows in
// days. Negative means the tier is kept forever. The external compaction
// scheduler reads this; the store never purges on its own schedule.
func (s *Store) RetentionConfig() config.Retention {
	out := make(config.Retention, len(s.retention))
	for tier, days := range s.retention {
		out[tier] = days
	}
	return out
}

// purgeOrder runs coarsest tier first so children whose parent rollup is
// purged in the same pass become purgeable themselves.
var purgeOrder = []string{
	model.EntryYearlyRollup,
	model.EntryMonthlyRollup,
	model.EntryWeeklyRollup,
	model.EntryHourlyRollup,
	model.EntryRaw,
}

// PurgeExpired physically deletes entries past their tier's retention
// window. An entry still referenced by an existing parent rollup is never
// deleted, regardless of age; its audit trail outlives its own window
// until the parent is purged.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	db, _, err := s.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	for _, tier := range purgeOrder {
		days, ok := s.retention[tier]
		if !ok || days < 0 {
			continue
		}
		cutoff := now.UTC().AddDate(0, 0, -days)

		res, err := tx.ExecContext(ctx,
			`DELETE FROM entries
			 WHERE entry_type = ? AND timestamp < ?
			   AND (parent_id IS NULL OR parent_id NOT IN (SELECT id FROM entries))`,
			tier, fmtTime(cutoff))
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if total > 0 {
		s.log.Info("journal entries purged", zap.Int64("count", total))
	}
	return total, nil
}
