package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/model"
	"github.com/keepsake-dev/keepsake/internal/sqlitex"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "journal.db"), opts...)
}

// stubEmbedder returns fixed vectors per text so ranking is
// deterministic. Unknown text gets the zero-ish fallback vector.
type stubEmbedder struct {
	vectors map[string]embedding.Vector
	fail    bool
}

func (e *stubEmbedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	if e.fail {
		return nil, fmt.Errorf("embedder offline")
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return embedding.Vector{0.1, 0.1, 0.1}, nil
}

func (e *stubEmbedder) Dims() int { return 3 }

func TestAddEntryDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.AddEntry(ctx, AddParams{Content: "went for a run"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e.EntryType != model.EntryRaw {
		t.Errorf("expected raw entry type, got %q", e.EntryType)
	}
	if e.RollupLevel != 0 {
		t.Errorf("expected rollup level 0, got %d", e.RollupLevel)
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to default to now")
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Content != "went for a run" {
		t.Fatalf("unexpected get result: %+v", got)
	}
}

func TestAddEntryInvalidType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.AddEntry(ctx, AddParams{Content: "x", EntryType: "dailyRollup"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), model.EntryHourlyRollup) {
		t.Errorf("error should name allowed types: %v", err)
	}
}

func TestRollupLevelIsFunctionOfType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for typ, want := range model.RollupLevels {
		e, err := s.AddEntry(ctx, AddParams{Content: "x", EntryType: typ})
		if err != nil {
			t.Fatalf("add %s: %v", typ, err)
		}
		if e.RollupLevel != want {
			t.Errorf("%s: level = %d, want %d", typ, e.RollupLevel, want)
		}
	}
}

func TestEmbedderAbsenceDoesNotFailWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithEmbedder(&stubEmbedder{fail: true}))

	if _, err := s.AddEntry(ctx, AddParams{Content: "still persisted"}); err != nil {
		t.Fatalf("write must survive embedder failure: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalEntries != 1 || st.Embedded != 0 {
		t.Errorf("expected 1 entry, 0 embedded; got %d/%d", st.TotalEntries, st.Embedded)
	}
}

func TestCreateRollupReparentsWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	var day1IDs []string
	for i := 0; i < 3; i++ {
		e, err := s.AddEntry(ctx, AddParams{
			Content:   fmt.Sprintf("day1 activity %d", i),
			Timestamp: day1.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
		day1IDs = append(day1IDs, e.ID)
	}
	var day2IDs []string
	for i := 0; i < 2; i++ {
		e, err := s.AddEntry(ctx, AddParams{
			Content:   fmt.Sprintf("day2 activity %d", i),
			Timestamp: day2.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
		day2IDs = append(day2IDs, e.ID)
	}

	rollup, err := s.CreateRollup(ctx, model.EntryHourlyRollup, day1, day2, day1IDs)
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if rollup.RollupLevel != 1 {
		t.Errorf("expected level 1, got %d", rollup.RollupLevel)
	}

	children, err := s.Children(ctx, rollup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 3 {
		t.Fatalf("expected all 3 day1 entries reparented, got %d", len(children))
	}

	for _, id := range day2IDs {
		e, _ := s.Get(ctx, id)
		if e.ParentID != "" {
			t.Errorf("day2 entry %s should stay unparented, got parent %q", id, e.ParentID)
		}
	}

	if !strings.Contains(rollup.Content, "3 entries") {
		t.Errorf("summary should mention entry count: %q", rollup.Content)
	}
}

func TestCreateRollupEmptyChildren(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rollup, err := s.CreateRollup(ctx, model.EntryWeeklyRollup, start, start.AddDate(0, 0, 7), nil)
	if err != nil {
		t.Fatalf("empty rollup must not error: %v", err)
	}
	if !strings.Contains(rollup.Content, "no activity") {
		t.Errorf("expected quiet-period summary, got %q", rollup.Content)
	}
	if rollup.PeriodStart == nil || rollup.PeriodEnd == nil {
		t.Error("rollup must record its period")
	}
}

func TestCreateRollupAtomicOnMissingChild(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.AddEntry(ctx, AddParams{Content: "real entry"})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now().Add(-time.Hour)
	_, err = s.CreateRollup(ctx, model.EntryHourlyRollup, start, time.Now(),
		[]string{e.ID, "01NOTAREALENTRYIDAAAAAAAAA"})
	if err == nil {
		t.Fatal("expected error for missing child")
	}

	// Nothing may be half-applied: no rollup row, no reparented child.
	got, _ := s.Get(ctx, e.ID)
	if got.ParentID != "" {
		t.Errorf("child must not be reparented after failed rollup, got %q", got.ParentID)
	}
	st, _ := s.Stats(ctx)
	if st.ByType[model.EntryHourlyRollup] != 0 {
		t.Error("failed rollup must not leave a rollup row behind")
	}
}

func TestCreateRollupInvalidType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.CreateRollup(ctx, model.EntryRaw, time.Now(), time.Now(), nil); err == nil {
		t.Fatal("raw is not a rollup type")
	}
}

// The journal is an audit log: a corrupted file must propagate as fatal,
// unlike the memory store which recreates itself (see memstore tests).
func TestCorruptJournalIsFatal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	if err := os.WriteFile(path, []byte("garbage, not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	_, err := s.AddEntry(ctx, AddParams{Content: "x"})
	if err == nil {
		t.Fatal("expected fatal error on corrupted journal")
	}
	if !errors.Is(err, sqlitex.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}
