// Package goals implements the goal tracker: goal rows with an
// append-only progress log and append-only pre-change version snapshots.
// Every field mutation is preceded by a snapshot of the old row, so the
// whole field history is reconstructable without the progress log.
//
// Like the journal, this is an audit log: a corrupted file propagates as
// fatal.
package goals

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/keepsake-dev/keepsake/internal/model"
	"github.com/keepsake-dev/keepsake/internal/sqlitex"
)

// Store is the goal tracker for one thread.
type Store struct {
	path    string
	log     *zap.Logger
	entropy *rand.Rand
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a goal store backed by the SQLite file at path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:    path,
		log:     zap.NewNop(),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) open() (*sql.DB, error) {
	db, err := sqlitex.Open(s.path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate goals: %v", sqlitex.ErrStorageUnavailable, err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS goals (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		category         TEXT NOT NULL,
		target_date      TEXT,
		status           TEXT NOT NULL DEFAULT 'planned',
		progress         REAL NOT NULL DEFAULT 0,
		priority         INTEGER NOT NULL DEFAULT 0,
		importance       INTEGER NOT NULL DEFAULT 0,
		parent_goal_id   TEXT,
		related_projects TEXT,
		depends_on       TEXT,
		tags             TEXT,
		notes            TEXT,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
	CREATE INDEX IF NOT EXISTS idx_goals_target ON goals(target_date);
	CREATE INDEX IF NOT EXISTS idx_goals_parent ON goals(parent_goal_id);

	CREATE TABLE IF NOT EXISTS goal_progress (
		id        TEXT PRIMARY KEY,
		goal_id   TEXT NOT NULL REFERENCES goals(id),
		progress  REAL NOT NULL,
		timestamp TEXT NOT NULL,
		source    TEXT NOT NULL,
		notes     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_progress_goal ON goal_progress(goal_id, timestamp DESC);

	CREATE TABLE IF NOT EXISTS goal_versions (
		id            TEXT PRIMARY KEY,
		goal_id       TEXT NOT NULL REFERENCES goals(id),
		version       INTEGER NOT NULL,
		snapshot      TEXT NOT NULL,
		change_type   TEXT NOT NULL,
		change_reason TEXT,
		changed_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_versions_goal ON goal_versions(goal_id, version DESC);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateParams holds parameters for Create.
type CreateParams struct {
	Title           string
	Description     string
	Category        string
	TargetDate      *time.Time
	Priority        int
	Importance      int
	ParentGoalID    string
	RelatedProjects []string
	DependsOn       []string
	Tags            []string
	Notes           []string
}

// Create inserts a new goal with status planned and progress 0.
func (s *Store) Create(ctx context.Context, p CreateParams) (*model.Goal, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !model.ValidGoalCategories[p.Category] {
		return nil, fmt.Errorf("invalid category %q (allowed: shortTerm, mediumTerm, longTerm)", p.Category)
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	now := time.Now().UTC()
	g := &model.Goal{
		ID:              s.newID(),
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category,
		TargetDate:      p.TargetDate,
		Status:          model.GoalPlanned,
		Progress:        0,
		Priority:        p.Priority,
		Importance:      p.Importance,
		ParentGoalID:    p.ParentGoalID,
		RelatedProjects: p.RelatedProjects,
		DependsOn:       p.DependsOn,
		Tags:            p.Tags,
		Notes:           p.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO goals (id, title, description, category, target_date, status, progress,
		                    priority, importance, parent_goal_id, related_projects, depends_on,
		                    tags, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, g.Description, g.Category, nullTime(g.TargetDate), g.Status, g.Progress,
		g.Priority, g.Importance, nullString(g.ParentGoalID), listJSON(g.RelatedProjects),
		listJSON(g.DependsOn), listJSON(g.Tags), listJSON(g.Notes),
		fmtTime(now), fmtTime(now)); err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}

	return g, nil
}

// Get returns a goal by id, nil when absent. Soft-deleted goals are
// still returned; callers filter on status.
func (s *Store) Get(ctx context.Context, id string) (*model.Goal, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return getGoal(ctx, db, id)
}

// ListParams holds filters for List.
type ListParams struct {
	Status   string // default: everything except deleted
	Category string
	Limit    int
}

// List returns goals matching the filters, most recently updated first.
func (s *Store) List(ctx context.Context, p ListParams) ([]model.Goal, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{}
	args := []interface{}{}
	if p.Status != "" {
		where = append(where, "status = ?")
		args = append(args, p.Status)
	} else {
		where = append(where, "status != 'deleted'")
	}
	if p.Category != "" {
		where = append(where, "category = ?")
		args = append(args, p.Category)
	}
	args = append(args, limit)

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		selectCols+` FROM goals WHERE `+strings.Join(where, " AND ")+
			` ORDER BY updated_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGoals(rows)
}

// UpdateParams holds the optional field changes for Update. Nil fields
// are untouched; nil slices are untouched (restore overwrites them
// through its own path).
type UpdateParams struct {
	ChangeType      string // default "update"
	ChangeReason    string
	Title           *string
	Description     *string
	Category        *string
	TargetDate      *time.Time
	Status          *string
	Progress        *float64
	Priority        *int
	Importance      *int
	ParentGoalID    *string
	RelatedProjects []string
	DependsOn       []string
	Tags            []string
	Notes           []string
}

// Update applies a partial field change to a goal. A snapshot of the
// pre-change row is written first, in the same transaction, so history is
// never lost even if the process dies mid-update. Returns false when the
// goal does not exist.
func (s *Store) Update(ctx context.Context, goalID string, p UpdateParams) (bool, error) {
	if p.Category != nil && !model.ValidGoalCategories[*p.Category] {
		return false, fmt.Errorf("invalid category %q (allowed: shortTerm, mediumTerm, longTerm)", *p.Category)
	}
	if p.Status != nil && !model.ValidGoalStatuses[*p.Status] {
		return false, fmt.Errorf("invalid status %q (allowed: planned, completed, abandoned, deleted)", *p.Status)
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return false, fmt.Errorf("progress %v out of range [0,100]", *p.Progress)
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

	ok, err := s.applyUpdate(ctx, tx, goalID, p)
	if err != nil || !ok {
		return ok, err
	}
	return true, tx.Commit()
}

// applyUpdate snapshots then mutates inside the caller's transaction.
func (s *Store) applyUpdate(ctx context.Context, tx *sql.Tx, goalID string, p UpdateParams) (bool, error) {
	g, err := getGoal(ctx, tx, goalID)
	if err != nil {
		return false, err
	}
	if g == nil {
		return false, nil
	}

	if err := s.writeSnapshot(ctx, tx, g, p.ChangeType, p.ChangeReason); err != nil {
		return false, err
	}

	if p.Title != nil {
		g.Title = *p.Title
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.Category != nil {
		g.Category = *p.Category
	}
	if p.TargetDate != nil {
		g.TargetDate = p.TargetDate
	}
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.Progress != nil {
		g.Progress = *p.Progress
	}
	if p.Priority != nil {
		g.Priority = *p.Priority
	}
	if p.Importance != nil {
		g.Importance = *p.Importance
	}
	if p.ParentGoalID != nil {
		g.ParentGoalID = *p.ParentGoalID
	}
	if p.RelatedProjects != nil {
		g.RelatedProjects = p.RelatedProjects
	}
	if p.DependsOn != nil {
		g.DependsOn = p.DependsOn
	}
	if p.Tags != nil {
		g.Tags = p.Tags
	}
	if p.Notes != nil {
		g.Notes = p.Notes
	}
	g.UpdatedAt = time.Now().UTC()

	return true, writeGoal(ctx, tx, g)
}

// writeSnapshot appends the pre-change state of g to goal_versions.
func (s *Store) writeSnapshot(ctx context.Context, tx *sql.Tx, g *model.Goal, changeType, changeReason string) error {
	if changeType == "" {
		changeType = "update"
	}

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM goal_versions WHERE goal_id = ?`, g.ID).Scan(&version); err != nil {
		return err
	}

	snapshot, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	var reason interface{}
	if changeReason != "" {
		reason = changeReason
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO goal_versions (id, goal_id, version, snapshot, change_type, change_reason, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.newID(), g.ID, version, string(snapshot), changeType, reason, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// writeGoal rewrites every mutable column of g.
func writeGoal(ctx context.Context, tx *sql.Tx, g *model.Goal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE goals SET title = ?, description = ?, category = ?, target_date = ?, status = ?,
		        progress = ?, priority = ?, importance = ?, parent_goal_id = ?,
		        related_projects = ?, depends_on = ?, tags = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		g.Title, g.Description, g.Category, nullTime(g.TargetDate), g.Status,
		g.Progress, g.Priority, g.Importance, nullString(g.ParentGoalID),
		listJSON(g.RelatedProjects), listJSON(g.DependsOn), listJSON(g.Tags), listJSON(g.Notes),
		fmtTime(g.UpdatedAt), g.ID)
	if err != nil {
		return fmt.Errorf("write goal: %w", err)
	}
	return nil
}

// Stats holds goal tracker counts for the stats command.
type Stats struct {
	TotalGoals      int            `json:"total_goals"`
	ByStatus        map[string]int `json:"by_status"`
	ProgressEntries int            `json:"progress_entries"`
	Versions        int            `json:"versions"`
}

// Stats returns row counts across the three tables.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	st := &Stats{ByStatus: make(map[string]int)}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM goals`).Scan(&st.TotalGoals); err != nil {
		return nil, fmt.Errorf("count goals: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM goals GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM goal_progress`).Scan(&st.ProgressEntries)
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM goal_versions`).Scan(&st.Versions)
	return st, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const selectCols = `SELECT id, title, description, category, target_date, status, progress,
       priority, importance, parent_goal_id, related_projects, depends_on, tags, notes,
       created_at, updated_at`

func getGoal(ctx context.Context, q querier, id string) (*model.Goal, error) {
	row := q.QueryRowContext(ctx, selectCols+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGoal(row scanner) (model.Goal, error) {
	var g model.Goal
	var targetDate, parent, related, depends, tags, notes sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&g.ID, &g.Title, &g.Description, &g.Category, &targetDate, &g.Status,
		&g.Progress, &g.Priority, &g.Importance, &parent, &related, &depends, &tags, &notes,
		&createdAt, &updatedAt)
	if err != nil {
		return g, err
	}

	if targetDate.Valid {
		t := parseTime(targetDate.String)
		g.TargetDate = &t
	}
	g.ParentGoalID = parent.String
	g.RelatedProjects = parseList(related)
	g.DependsOn = parseList(depends)
	g.Tags = parseList(tags)
	g.Notes = parseList(notes)
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)

	return g, nil
}

func collectGoals(rows *sql.Rows) ([]model.Goal, error) {
	var out []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func listJSON(list []string) interface{} {
	if len(list) == 0 {
		return nil
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func parseList(s sql.NullString) []string {
	if !s.Valid {
		return nil
	}
	var out []string
	json.Unmarshal([]byte(s.String), &out)
	return out
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func fmtTime(t time.Time) string {
	return sqlitex.FmtTime(t)
}

func parseTime(s string) time.Time {
	return sqlitex.ParseTime(s)
}
