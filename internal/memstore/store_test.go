package memstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keepsake-dev/keepsake/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "memory.db"))
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, err := s.CreateOrVersion(ctx, CreateParams{
		Key: "timezone", Content: "America/New_York", MemoryType: "preference", Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if mem.Version != 1 {
		t.Errorf("expected version 1, got %d", mem.Version)
	}
	if mem.ValidTo != nil {
		t.Error("expected nil valid_to on current version")
	}

	got, err := s.Get(ctx, mem.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Content != "America/New_York" {
		t.Fatalf("unexpected get result: %+v", got)
	}
}

func TestInvalidMemoryType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateOrVersion(ctx, CreateParams{Key: "k", Content: "x", MemoryType: "opinion"})
	if err == nil {
		t.Fatal("expected validation error for unknown memory type")
	}
	for _, want := range []string{"profile", "fact", "preference", "constraint", "style", "context"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should name allowed type %q: %v", want, err)
		}
	}
}

func TestSupersessionSingleCurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, content := range []string{"v1", "v2", "v3"} {
		if _, err := s.CreateOrVersion(ctx, CreateParams{
			Key: "k", Content: content, MemoryType: "fact", Confidence: 1,
		}); err != nil {
			t.Fatalf("create %s: %v", content, err)
		}
	}

	db, _, err := s.open()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var current, total int
	db.QueryRow(`SELECT COUNT(*) FROM memories WHERE key = 'k' AND valid_to IS NULL`).Scan(&current)
	db.QueryRow(`SELECT COUNT(*) FROM memories WHERE key = 'k'`).Scan(&total)
	if current != 1 {
		t.Errorf("expected exactly 1 current row, got %d", current)
	}
	if total != 3 {
		t.Errorf("expected 3 retained rows, got %d", total)
	}
}

func TestMonotonicVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var last *model.Memory
	for i, content := range []string{"a", "b", "c", "d"} {
		mem, err := s.CreateOrVersion(ctx, CreateParams{
			Key: "k", Content: content, MemoryType: "fact", Confidence: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if mem.Version != i+1 {
			t.Errorf("expected version %d, got %d", i+1, mem.Version)
		}
		last = mem
	}

	hist, err := s.GetHistory(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(hist))
	}
	for i, h := range hist {
		if h.Version != i+1 {
			t.Errorf("history[%d] version = %d, want %d", i, h.Version, i+1)
		}
	}
	if hist[3].Content != last.Content {
		t.Errorf("latest history entry %q != current content %q", hist[3].Content, last.Content)
	}
	if hist[3].ValidTo != nil {
		t.Error("latest history entry should be open-ended")
	}
	if hist[0].ValidTo == nil {
		t.Error("closed history entry should have valid_to set")
	}
}

func TestTemporalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := s.CreateOrVersion(ctx, CreateParams{
			Key: "k", Content: content, MemoryType: "fact", Confidence: 1,
		}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	hist, err := s.GetHistory(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range hist {
		got, err := s.GetAtTime(ctx, "k", v.ValidFrom)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil {
			t.Fatalf("getAtTime(%v) returned nil for version %d", v.ValidFrom, v.Version)
		}
		if got.Content != v.Content {
			t.Errorf("getAtTime(v%d.validFrom) = %q, want %q", v.Version, got.Content, v.Content)
		}
	}

	// Before the key existed.
	got, err := s.GetAtTime(ctx, "k", hist[0].ValidFrom.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil before first version, got %+v", got)
	}
}

func TestUpdateContentSupersedes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1, _ := s.CreateOrVersion(ctx, CreateParams{
		Key: "timezone", Content: "America/New_York", MemoryType: "preference", Confidence: 0.9,
	})

	m2, err := s.Update(ctx, UpdateParams{ID: m1.ID, Content: ptr("America/Los_Angeles")})
	if err != nil {
		t.Fatal(err)
	}
	if m2 == nil {
		t.Fatal("expected updated memory")
	}
	if m2.ID == m1.ID {
		t.Error("content change must produce a new id")
	}
	if m2.Version != 2 {
		t.Errorf("expected version 2, got %d", m2.Version)
	}

	old, _ := s.Get(ctx, m1.ID)
	if old.ValidTo == nil {
		t.Error("superseded row should be closed")
	}
}

func TestUpdateKeepsOwnerAndSource(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1, _ := s.CreateOrVersion(ctx, CreateParams{
		Key:             "home.city",
		Content:         "Boulder",
		MemoryType:      "fact",
		Confidence:      0.8,
		OwnerType:       "agent",
		OwnerID:         "u123",
		SourceMessageID: "msg-42",
	})

	m2, err := s.Update(ctx, UpdateParams{ID: m1.ID, Content: ptr("Denver")})
	if err != nil {
		t.Fatal(err)
	}
	if m2 == nil {
		t.Fatal("expected updated memory")
	}

	// Supersession versions the same fact; attributes the caller did not
	// change must carry over to the successor row.
	if m2.OwnerType != "agent" || m2.OwnerID != "u123" {
		t.Errorf("owner lost across supersession: ownerType=%q ownerID=%q", m2.OwnerType, m2.OwnerID)
	}
	if m2.SourceMessageID != "msg-42" {
		t.Errorf("source message lost across supersession: %q", m2.SourceMessageID)
	}

	got, _ := s.Get(ctx, m2.ID)
	if got.OwnerType != "agent" || got.OwnerID != "u123" || got.SourceMessageID != "msg-42" {
		t.Errorf("persisted successor row mismatch: %+v", got)
	}
}

func TestUpdateConfidenceInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1, _ := s.CreateOrVersion(ctx, CreateParams{
		Key: "k", Content: "x", MemoryType: "fact", Confidence: 0.5,
	})

	m2, err := s.Update(ctx, UpdateParams{ID: m1.ID, Confidence: ptr(0.8)})
	if err != nil {
		t.Fatal(err)
	}
	if m2.ID != m1.ID {
		t.Error("confidence-only change must not version")
	}
	if m2.Version != 1 {
		t.Errorf("expected version 1, got %d", m2.Version)
	}

	got, _ := s.Get(ctx, m1.ID)
	if got.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", got.Confidence)
	}
}

func TestUpdateMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.Update(ctx, UpdateParams{ID: "01JUNKJUNKJUNKJUNKJUNKJUNK", Confidence: ptr(0.5)})
	if err != nil {
		t.Fatalf("missing id should not error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing id")
	}
}

func TestSoftDeleteRetainsRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1, _ := s.CreateOrVersion(ctx, CreateParams{
		Key: "k", Content: "x", MemoryType: "fact", Confidence: 1,
	})
	if _, err := s.Update(ctx, UpdateParams{ID: m1.ID, Status: ptr(model.MemoryDeleted)}); err != nil {
		t.Fatal(err)
	}

	// Row survives for audit.
	got, _ := s.Get(ctx, m1.ID)
	if got == nil || got.Status != model.MemoryDeleted {
		t.Fatalf("expected retained deleted row, got %+v", got)
	}

	// Deleted rows no longer accept updates.
	res, err := s.Update(ctx, UpdateParams{ID: m1.ID, Confidence: ptr(0.1)})
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Error("expected nil updating a deleted row")
	}
}

func TestKeylessAlwaysInserts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1, _ := s.CreateOrVersion(ctx, CreateParams{Content: "likes jazz", MemoryType: "preference", Confidence: 1})
	m2, _ := s.CreateOrVersion(ctx, CreateParams{Content: "likes jazz concerts", MemoryType: "preference", Confidence: 1})

	if m1.Version != 1 || m2.Version != 1 {
		t.Error("keyless creates must always be version 1")
	}
	if m1.ID == m2.ID {
		t.Error("expected distinct rows")
	}
}

// The memory store alone may recover from a corrupted file by recreating
// it empty; the journal and goal stores must instead fail loudly (see
// their tests). This asymmetry is policy: facts are a best-effort cache,
// the other two are audit logs.
func TestCorruptFileRecreatedEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")

	if err := os.WriteFile(path, []byte("this is not a sqlite database at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	mems, err := s.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if len(mems) != 0 {
		t.Fatalf("expected empty store after recovery, got %d rows", len(mems))
	}

	// And the recreated store is writable.
	if _, err := s.CreateOrVersion(ctx, CreateParams{
		Key: "k", Content: "x", MemoryType: "fact", Confidence: 1,
	}); err != nil {
		t.Fatalf("create after recovery: %v", err)
	}
}
