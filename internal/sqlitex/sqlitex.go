// Package sqlitex holds the shared SQLite open/close discipline for the
// per-thread stores. Each store operation opens its file, runs one
// transaction, and closes the handle before returning; nothing is held
// across calls.
package sqlitex

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering of stored strings;
// this layout keeps them, so SQL comparisons order by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FmtTime formats t for storage as comparable UTC text.
func FmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a timestamp written by FmtTime.
func ParseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// ErrStorageUnavailable wraps failures to open or read a store file.
// The memory store recovers from this by recreating the file; the journal
// and goal stores propagate it, since they are audit logs.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Open opens the SQLite file at path in WAL mode, creating parent
// directories as needed, and probes it so a corrupted file fails here
// rather than on first use.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, path, err)
	}

	// sql.Open defers I/O until first use; read the catalog now.
	if _, err := db.Exec(`SELECT count(*) FROM sqlite_master`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: probe %s: %v", ErrStorageUnavailable, path, err)
	}

	return db, nil
}

// Recreate removes the store file and its WAL sidecars and opens a fresh,
// empty database at the same path.
func Recreate(path string) (*sql.DB, error) {
	os.Remove(path)
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
	return Open(path)
}
