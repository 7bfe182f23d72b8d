package goals

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keepsake-dev/keepsake/internal/model"
)

// ProgressParams holds parameters for UpdateProgress.
type ProgressParams struct {
	Progress float64
	Source   string
	Notes    string
}

// UpdateProgress appends a progress log entry and moves the goal's
// denormalized progress field to match, snapshotting first. Both writes
// happen in one transaction so the log and the field never diverge.
// Returns false when the goal does not exist.
func (s *Store) UpdateProgress(ctx context.Context, goalID string, p ProgressParams) (bool, error) {
	if p.Progress < 0 || p.Progress > 100 {
		return false, fmt.Errorf("progress %v out of range [0,100]", p.Progress)
	}
	source := p.Source
	if source == "" {
		source = "manual"
	}

	db, err := s.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	ok, err := s.applyUpdate(ctx, tx, goalID, UpdateParams{
		ChangeType: "progress_update",
		Progress:   &p.Progress,
	})
	if err != nil || !ok {
		return ok, err
	}

	var notes interface{}
	if p.Notes != "" {
		notes = p.Notes
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO goal_progress (id, goal_id, progress, timestamp, source, notes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.newID(), goalID, p.Progress, fmtTime(time.Now()), source, notes); err != nil {
		return false, fmt.Errorf("append progress: %w", err)
	}

	return true, tx.Commit()
}

// GetProgressHistory returns the progress log for a goal, newest first.
func (s *Store) GetProgressHistory(ctx context.Context, goalID string, limit int) ([]model.GoalProgressEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, goal_id, progress, timestamp, source, notes
		 FROM goal_progress WHERE goal_id = ? ORDER BY timestamp DESC LIMIT ?`,
		goalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GoalProgressEntry
	for rows.Next() {
		var e model.GoalProgressEntry
		var ts string
		var notes sql.NullString
		if err := rows.Scan(&e.ID, &e.GoalID, &e.Progress, &ts, &e.Source, &notes); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.Notes = notes.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetVersionHistory returns a goal's snapshots, newest first.
func (s *Store) GetVersionHistory(ctx context.Context, goalID string, limit int) ([]model.GoalVersion, error) {
	if limit <= 0 {
		limit = 50
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, goal_id, version, snapshot, change_type, change_reason, changed_at
		 FROM goal_versions WHERE goal_id = ? ORDER BY version DESC LIMIT ?`,
		goalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GoalVersion
	for rows.Next() {
		var v model.GoalVersion
		var snapshot, changedAt string
		var reason sql.NullString
		if err := rows.Scan(&v.ID, &v.GoalID, &v.Version, &snapshot, &v.ChangeType, &reason, &changedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(snapshot), &v.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", v.ID, err)
		}
		v.ChangeReason = reason.String
		v.ChangedAt = parseTime(changedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// RestoreFromVersion rewrites a goal's fields from a stored snapshot.
// The restore itself is snapshotted first, so it is just another version
// and can in turn be undone. A soft-deleted goal stays deleted; restore
// recovers fields, not existence. Returns false when the goal or the
// version does not exist.
func (s *Store) RestoreFromVersion(ctx context.Context, goalID, versionID, changeReason string) (bool, error) {
	db, err := s.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var snapshotJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT snapshot FROM goal_versions WHERE id = ? AND goal_id = ?`,
		versionID, goalID).Scan(&snapshotJSON)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var snap model.Goal
	if err := json.Unmarshal([]byte(snapshotJSON), &snap); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", versionID, err)
	}

	cur, err := getGoal(ctx, tx, goalID)
	if err != nil {
		return false, err
	}
	if cur == nil {
		return false, nil
	}

	if err := s.writeSnapshot(ctx, tx, cur, "restore", changeReason); err != nil {
		return false, err
	}

	restored := snap
	restored.ID = cur.ID
	restored.CreatedAt = cur.CreatedAt
	restored.UpdatedAt = time.Now().UTC()
	if cur.Status == model.GoalDeleted {
		restored.Status = model.GoalDeleted
	}

	if err := writeGoal(ctx, tx, &restored); err != nil {
		return false, err
	}
	return true, tx.Commit()
}
