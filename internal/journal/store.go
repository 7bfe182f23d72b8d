// Package journal implements the time-series journal: raw activity
// entries compacted into hourly/weekly/monthly/yearly rollups, searched by
// vector similarity, full text, or substring, in that order of
// preference.
//
// Unlike the memory store, the journal is an audit log: a corrupted file
// is a fatal error, never silently recreated.
package journal

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

	"github.com/keepsake-dev/keepsake/internal/config"
	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/model"
	"github.com/keepsake-dev/keepsake/internal/sqlitex"
)

// Store is the journal for one thread. It holds only the file path; every
// operation opens the file, runs one transaction, and closes it.
type Store struct {
	path      string
	log       *zap.Logger
	embed     embedding.Provider
	retention config.Retention
	entropy   *rand.Rand
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithEmbedder sets the embedding provider. Nil disables semantic search;
// writes still succeed.
func WithEmbedder(p embedding.Provider) Option {
	return func(s *Store) { s.embed = p }
}

// WithRetention overrides the per-tier retention windows.
func WithRetention(r config.Retention) Option {
	return func(s *Store) { s.retention = r }
}

// New creates a journal store backed by the SQLite file at path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:      path,
		log:       zap.NewNop(),
		retention: config.Default().Retention,
		entropy:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) open() (*sql.DB, bool, error) {
	db, err := sqlitex.Open(s.path)
	if err != nil {
		return nil, false, err
	}
	fts, err := migrate(db)
	if err != nil {
		db.Close()
		return nil, false, fmt.Errorf("%w: migrate journal: %v", sqlitex.ErrStorageUnavailable, err)
	}
	return db, fts, nil
}

func migrate(db *sql.DB) (bool, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id           TEXT PRIMARY KEY,
		content      TEXT NOT NULL,
		entry_type   TEXT NOT NULL DEFAULT 'raw',
		timestamp    TEXT NOT NULL,
		period_start TEXT,
		period_end   TEXT,
		metadata     TEXT,
		embedding    BLOB,
		parent_id    TEXT,
		rollup_level INTEGER NOT NULL DEFAULT 0,
		status       TEXT NOT NULL DEFAULT 'active'
	);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);
	CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_id);
	CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(entry_type, timestamp);
	CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
	`
	if _, err := db.Exec(schema); err != nil {
		return false, err
	}

	_, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		content,
		content=entries,
		content_rowid=rowid
	)`)
	if err != nil {
		return false, nil
	}

	db.Exec(`CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
		INSERT INTO entries_fts(rowid, content) VALUES (new.rowid, new.content);
	END`)
	db.Exec(`CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	END`)
	db.Exec(`CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		INSERT INTO entries_fts(rowid, content) VALUES (new.rowid, new.content);
	END`)

	return true, nil
}

// AddParams holds parameters for AddEntry.
type AddParams struct {
	Content   string
	EntryType string    // default "raw"
	Timestamp time.Time // default now
	Metadata  map[string]string
	ParentID  string
}

// AddEntry persists a journal entry. The rollup level is derived from the
// entry type. The content is embedded when a provider is configured;
// embedding failure degrades the entry to text-only search, it never
// fails the write.
func (s *Store) AddEntry(ctx context.Context, p AddParams) (*model.JournalEntry, error) {
	entryType := p.EntryType
	if entryType == "" {
		entryType = model.EntryRaw
	}
	level, ok := model.RollupLevels[entryType]
	if !ok {
		return nil, fmt.Errorf("invalid entry type %q (allowed: %s)", entryType, allowedEntryTypes())
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	var blob []byte
	if s.embed != nil {
		vec, err := s.embed.Embed(ctx, p.Content)
		if err != nil {
			s.log.Debug("embedding unavailable for entry", zap.Error(err))
		} else {
			blob = embedding.EncodeVector(vec)
		}
	}

	var metaJSON interface{}
	if len(p.Metadata) > 0 {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		metaJSON = string(b)
	}

	var parent interface{}
	if p.ParentID != "" {
		parent = p.ParentID
	}

	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	id := s.newID()
	_, err = db.ExecContext(ctx,
		`INSERT INTO entries (id, content, entry_type, timestamp, period_start, period_end,
		                      metadata, embedding, parent_id, rollup_level, status)
		 VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?, 'active')`,
		id, p.Content, entryType, fmtTime(ts), metaJSON, blob, parent, level)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	return &model.JournalEntry{
		ID:          id,
		Content:     p.Content,
		EntryType:   entryType,
		Timestamp:   ts,
		Metadata:    p.Metadata,
		ParentID:    p.ParentID,
		RollupLevel: level,
		Status:      model.EntryActive,
	}, nil
}

// Get returns an entry by id, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*model.JournalEntry, error) {
	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	row := db.QueryRowContext(ctx, selectCols+` FROM entries WHERE id = ?`, id)
	e, _, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Children returns the entries folded into the given rollup, oldest first.
func (s *Store) Children(ctx context.Context, rollupID string) ([]model.JournalEntry, error) {
	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		selectCols+` FROM entries WHERE parent_id = ? ORDER BY timestamp`, rollupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListParams holds filters for List.
type ListParams struct {
	EntryType string
	Start     *time.Time
	End       *time.Time
	Limit     int
}

// List returns active entries matching the filters, newest first.
func (s *Store) List(ctx context.Context, p ListParams) ([]model.JournalEntry, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where, args := windowFilter(p.Start, p.End)
	if p.EntryType != "" {
		where = append(where, "entry_type = ?")
		args = append(args, p.EntryType)
	}
	args = append(args, limit)

	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		selectCols+` FROM entries WHERE `+strings.Join(where, " AND ")+
			` ORDER BY timestamp DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Stats holds journal counts per tier.
type Stats struct {
	TotalEntries int            `json:"total_entries"`
	ByType       map[string]int `json:"by_type"`
	Embedded     int            `json:"embedded"`
}

// Stats returns entry counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	st := &Stats{ByType: map[string]int{}}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&st.TotalEntries); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE embedding IS NOT NULL`).Scan(&st.Embedded)

	rows, err := db.QueryContext(ctx, `SELECT entry_type, COUNT(*) FROM entries GROUP BY entry_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		st.ByType[typ] = n
	}
	return st, rows.Err()
}

const selectCols = `SELECT id, content, entry_type, timestamp, period_start, period_end,
       metadata, embedding, parent_id, rollup_level, status`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (model.JournalEntry, []byte, error) {
	var e model.JournalEntry
	var periodStart, periodEnd, metaJSON, parent sql.NullString
	var timestamp string
	var blob []byte

	err := row.Scan(&e.ID, &e.Content, &e.EntryType, &timestamp, &periodStart, &periodEnd,
		&metaJSON, &blob, &parent, &e.RollupLevel, &e.Status)
	if err != nil {
		return e, nil, err
	}

	e.Timestamp = parseTime(timestamp)
	if periodStart.Valid {
		t := parseTime(periodStart.String)
		e.PeriodStart = &t
	}
	if periodEnd.Valid {
		t := parseTime(periodEnd.String)
		e.PeriodEnd = &t
	}
	if metaJSON.Valid {
		json.Unmarshal([]byte(metaJSON.String), &e.Metadata)
	}
	e.ParentID = parent.String

	return e, blob, nil
}

func collectEntries(rows *sql.Rows) ([]model.JournalEntry, error) {
	var out []model.JournalEntry
	for rows.Next() {
		e, _, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func windowFilter(start, end *time.Time) ([]string, []interface{}) {
	where := []string{"status = 'active'"}
	args := []interface{}{}
	if start != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, fmtTime(start.UTC()))
	}
	if end != nil {
		where = append(where, "timestamp < ?")
		args = append(args, fmtTime(end.UTC()))
	}
	return where, args
}

func allowedEntryTypes() string {
	return strings.Join([]string{
		model.EntryRaw, model.EntryHourlyRollup, model.EntryWeeklyRollup,
		model.EntryMonthlyRollup, model.EntryYearlyRollup,
	}, ", ")
}

func fmtTime(t time.Time) string {
	return sqlitex.FmtTime(t)
}

func parseTime(s string) time.Time {
	return sqlitex.ParseTime(s)
}
