// Package memstore implements the versioned memory store: keyed facts
// about the user with full supersession history and point-in-time reads.
//
// A content change never overwrites a row. It closes the current row's
// validity interval and inserts a successor with version+1, so for any key
// exactly one row has a nil valid_to at any instant and every prior
// version stays reachable.
package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/keepsake-dev/keepsake/internal/model"
	"github.com/keepsake-dev/keepsake/internal/sqlitex"
	"github.com/keepsake-dev/keepsake/internal/textutil"
)

// Store is the versioned memory store for one thread. It holds only the
// file path; every operation opens the file, runs one transaction, and
// closes it before returning.
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

// New creates a memory store backed by the SQLite file at path. The file
// is created on first use.
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

// open opens the store file and ensures the schema. Facts are a
// best-effort cache: an unreadable or corrupted file is recreated empty
// rather than surfaced as fatal. The journal and goal stores deliberately
// do not share this behavior.
func (s *Store) open() (*sql.DB, bool, error) {
	db, err := sqlitex.Open(s.path)
	if err != nil {
		s.log.Warn("memory store unreadable, recreating empty",
			zap.String("path", s.path), zap.Error(err))
		if db, err = sqlitex.Recreate(s.path); err != nil {
			return nil, false, err
		}
	}

	fts, err := migrate(db)
	if err != nil {
		db.Close()
		s.log.Warn("memory store schema unusable, recreating empty",
			zap.String("path", s.path), zap.Error(err))
		if db, err = sqlitex.Recreate(s.path); err != nil {
			return nil, false, err
		}
		if fts, err = migrate(db); err != nil {
			db.Close()
			return nil, false, fmt.Errorf("%w: migrate: %v", sqlitex.ErrStorageUnavailable, err)
		}
	}

	return db, fts, nil
}

// migrate ensures the schema and reports whether the FTS index is usable.
func migrate(db *sql.DB) (bool, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                 TEXT PRIMARY KEY,
		owner_type         TEXT NOT NULL DEFAULT 'user',
		owner_id           TEXT NOT NULL DEFAULT '',
		memory_type        TEXT NOT NULL,
		key                TEXT,
		content            TEXT NOT NULL,
		normalized_content TEXT NOT NULL,
		confidence         REAL NOT NULL DEFAULT 1.0,
		status             TEXT NOT NULL DEFAULT 'active',
		valid_from         TEXT NOT NULL,
		valid_to           TEXT,
		version            INTEGER NOT NULL DEFAULT 1,
		history            TEXT NOT NULL DEFAULT '[]',
		source_message_id  TEXT,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_current ON memories(key) WHERE valid_to IS NULL;
	CREATE INDEX IF NOT EXISTS idx_memories_interval ON memories(key, valid_from);
	CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
	CREATE INDEX IF NOT EXISTS idx_memories_norm ON memories(normalized_content);
	`
	if _, err := db.Exec(schema); err != nil {
		return false, err
	}

	// FTS5 is optional; search falls back to substring matching without it.
	_, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		content,
		key,
		content=memories,
		content_rowid=rowid
	)`)
	if err != nil {
		return false, nil
	}

	db.Exec(`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
		INSERT INTO memories_fts(rowid, content, key) VALUES (new.rowid, new.content, new.key);
	END`)
	db.Exec(`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content, key) VALUES('delete', old.rowid, old.content, old.key);
	END`)
	db.Exec(`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content, key) VALUES('delete', old.rowid, old.content, old.key);
		INSERT INTO memories_fts(rowid, content, key) VALUES (new.rowid, new.content, new.key);
	END`)

	return true, nil
}

// CreateParams holds parameters for CreateOrVersion.
type CreateParams struct {
	Key             string // optional; empty means a standalone fact
	Content         string
	MemoryType      string
	Confidence      float64
	OwnerType       string // default "user"
	OwnerID         string
	SourceMessageID string
	ChangeReason    string // recorded on the superseded version
}

// CreateOrVersion stores a fact. With an empty key it always inserts a
// fresh version-1 row. With a key it supersedes the key's current row if
// one exists: the old row is closed at now, its history entry gets a
// valid_to and change reason, and the new row carries the extended
// history.
func (s *Store) CreateOrVersion(ctx context.Context, p CreateParams) (*model.Memory, error) {
	if !model.ValidMemoryTypes[p.MemoryType] {
		return nil, fmt.Errorf("invalid memory type %q (allowed: %s)", p.MemoryType, allowedKeys(model.ValidMemoryTypes))
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range [0,1]", p.Confidence)
	}

	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var mem *model.Memory

	if p.Key == "" {
		mem, err = s.insertVersion(ctx, tx, p, now, 1, nil)
	} else {
		prev, perr := currentByKey(ctx, tx, p.Key)
		if perr != nil {
			return nil, perr
		}
		mem, err = s.supersede(ctx, tx, prev, p, now)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if mem.Version > 1 {
		s.log.Debug("memory superseded",
			zap.String("key", p.Key), zap.Int("version", mem.Version))
	}

	return mem, nil
}

// supersede closes prev (which may be nil) and inserts the next version in
// the same transaction, so a crash can never leave two current rows for
// one key.
func (s *Store) supersede(ctx context.Context, tx *sql.Tx, prev *model.Memory, p CreateParams, now time.Time) (*model.Memory, error) {
	if prev == nil {
		return s.insertVersion(ctx, tx, p, now, 1, nil)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET valid_to = ?, updated_at = ? WHERE id = ?`,
		fmtTime(now), fmtTime(now), prev.ID); err != nil {
		return nil, fmt.Errorf("close previous version: %w", err)
	}

	history := prev.History
	if len(history) > 0 {
		last := &history[len(history)-1]
		closed := now
		last.ValidTo = &closed
		reason := p.ChangeReason
		if reason == "" {
			reason = "superseded"
		}
		last.ChangeReason = reason
	}

	return s.insertVersion(ctx, tx, p, now, prev.Version+1, history)
}

func (s *Store) insertVersion(ctx context.Context, tx *sql.Tx, p CreateParams, now time.Time, version int, history []model.MemoryVersion) (*model.Memory, error) {
	id := s.newID()

	history = append(history, model.MemoryVersion{
		Version:    version,
		Content:    p.Content,
		Confidence: p.Confidence,
		ValidFrom:  now,
	})
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}

	var key, source interface{}
	if p.Key != "" {
		key = p.Key
	}
	if p.SourceMessageID != "" {
		source = p.SourceMessageID
	}
	ownerType := p.OwnerType
	if ownerType == "" {
		ownerType = "user"
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, owner_type, owner_id, memory_type, key, content, normalized_content,
		                       confidence, status, valid_from, valid_to, version, history,
		                       source_message_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, NULL, ?, ?, ?, ?, ?)`,
		id, ownerType, p.OwnerID, p.MemoryType, key, p.Content, textutil.Normalize(p.Content),
		p.Confidence, fmtTime(now), version, string(historyJSON),
		source, fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	return &model.Memory{
		ID:              id,
		OwnerType:       ownerType,
		OwnerID:         p.OwnerID,
		MemoryType:      p.MemoryType,
		Key:             p.Key,
		Content:         p.Content,
		Confidence:      p.Confidence,
		Status:          model.MemoryActive,
		ValidFrom:       now,
		Version:         version,
		History:         history,
		SourceMessageID: p.SourceMessageID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// UpdateParams holds the optional field changes for Update. Nil fields
// are untouched.
type UpdateParams struct {
	ID           string
	Content      *string
	Confidence   *float64
	Status       *string
	ChangeReason string
}

// Update changes a memory. A content change goes through supersession and
// returns the successor row, so callers must switch to the returned id.
// Confidence and status changes mutate the row in place without
// versioning. Returns nil when the id does not resolve to a non-deleted
// row.
func (s *Store) Update(ctx context.Context, p UpdateParams) (*model.Memory, error) {
	if p.Status != nil && !model.ValidMemoryStatuses[*p.Status] {
		return nil, fmt.Errorf("invalid status %q (allowed: %s)", *p.Status, allowedKeys(model.ValidMemoryStatuses))
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return nil, fmt.Errorf("confidence %v out of range [0,1]", *p.Confidence)
	}

	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cur, err := getByID(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.Status == model.MemoryDeleted {
		return nil, nil
	}

	now := time.Now().UTC()

	if p.Content != nil && *p.Content != cur.Content {
		confidence := cur.Confidence
		if p.Confidence != nil {
			confidence = *p.Confidence
		}
		next, err := s.supersede(ctx, tx, cur, CreateParams{
			Key:             cur.Key,
			Content:         *p.Content,
			MemoryType:      cur.MemoryType,
			Confidence:      confidence,
			OwnerType:       cur.OwnerType,
			OwnerID:         cur.OwnerID,
			SourceMessageID: cur.SourceMessageID,
			ChangeReason:    p.ChangeReason,
		}, now)
		if err != nil {
			return nil, err
		}
		if p.Status != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE memories SET status = ? WHERE id = ?`, *p.Status, next.ID); err != nil {
				return nil, err
			}
			next.Status = *p.Status
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return next, nil
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{fmtTime(now)}
	if p.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, *p.Confidence)
		cur.Confidence = *p.Confidence
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
		cur.Status = *p.Status
	}
	args = append(args, p.ID)

	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	cur.UpdatedAt = now
	return cur, nil
}

// Get returns a memory by id, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*model.Memory, error) {
	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return getByID(ctx, db, id)
}

// GetAtTime returns the version of key whose [valid_from, valid_to)
// interval contains ts, nil when the key had no value then. Lookup is by
// key, not id: ids change across versions.
func (s *Store) GetAtTime(ctx context.Context, key string, ts time.Time) (*model.Memory, error) {
	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	row := db.QueryRowContext(ctx,
		selectCols+` FROM memories
		 WHERE key = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		 ORDER BY version DESC LIMIT 1`,
		key, fmtTime(ts.UTC()), fmtTime(ts.UTC()))

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetHistory returns the key's version history, oldest first, read from
// the current row's embedded history array. Nil when the key has no
// current row.
func (s *Store) GetHistory(ctx context.Context, key string) ([]model.MemoryVersion, error) {
	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cur, err := currentByKey(ctx, db, key)
	if err != nil || cur == nil {
		return nil, err
	}

	history := cur.History
	sort.Slice(history, func(i, j int) bool { return history[i].Version < history[j].Version })
	return history, nil
}

// ListParams holds filters for List.
type ListParams struct {
	MemoryType string
	Status     string // default: active only
	Limit      int
}

// List returns current memory versions matching the filters, newest first.
func (s *Store) List(ctx context.Context, p ListParams) ([]model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	status := p.Status
	if status == "" {
		status = model.MemoryActive
	}

	where := []string{"valid_to IS NULL", "status = ?"}
	args := []interface{}{status}
	if p.MemoryType != "" {
		where = append(where, "memory_type = ?")
		args = append(args, p.MemoryType)
	}
	args = append(args, limit)

	db, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		selectCols+` FROM memories WHERE `+strings.Join(where, " AND ")+
			` ORDER BY updated_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemories(rows)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const selectCols = `SELECT id, owner_type, owner_id, memory_type, key, content, confidence,
       status, valid_from, valid_to, version, history, source_message_id, created_at, updated_at`

func currentByKey(ctx context.Context, q querier, key string) (*model.Memory, error) {
	row := q.QueryRowContext(ctx,
		selectCols+` FROM memories WHERE key = ? AND valid_to IS NULL LIMIT 1`, key)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func getByID(ctx context.Context, q querier, id string) (*model.Memory, error) {
	row := q.QueryRowContext(ctx, selectCols+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var key, validTo, historyJSON, source sql.NullString
	var validFrom, createdAt, updatedAt string

	err := row.Scan(
		&m.ID, &m.OwnerType, &m.OwnerID, &m.MemoryType, &key, &m.Content, &m.Confidence,
		&m.Status, &validFrom, &validTo, &m.Version, &historyJSON, &source,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return m, err
	}

	m.Key = key.String
	m.SourceMessageID = source.String
	m.ValidFrom = parseTime(validFrom)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if validTo.Valid {
		t := parseTime(validTo.String)
		m.ValidTo = &t
	}
	if historyJSON.Valid {
		json.Unmarshal([]byte(historyJSON.String), &m.History)
	}

	return m, nil
}

func collectMemories(rows *sql.Rows) ([]model.Memory, error) {
	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Timestamps are stored as fixed-width nanosecond text so back-to-back
// versions keep distinct, ordered validity intervals.
func fmtTime(t time.Time) string {
	return sqlitex.FmtTime(t)
}

func parseTime(s string) time.Time {
	return sqlitex.ParseTime(s)
}

func allowedKeys(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
