package threads

import (
	"context"
	"testing"
	"time"

	"github.com/keepsake-dev/keepsake/internal/config"
	"github.com/keepsake-dev/keepsake/internal/memstore"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return NewRegistry(cfg, zap.NewNop(), nil)
}

func TestThreadsAreIsolated(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	alice, err := r.GetOrCreate("alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, _ := r.GetOrCreate("bob")

	if _, err := alice.Memory.CreateOrVersion(ctx, memstore.CreateParams{
		Key: "user.name", Content: "Alice", MemoryType: "profile",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := bob.Memory.GetAtTime(ctx, "user.name", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("threads must not see each other's memories")
	}
}

func TestGetOrCreateReturnsSameHandle(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.GetOrCreate("alice")
	b, _ := r.GetOrCreate("alice")
	if a != b {
		t.Error("expected the cached handle")
	}
}

func TestInvalidThreadID(t *testing.T) {
	r := newTestRegistry(t)
	for _, id := range []string{"", "../escape", "a/b", "a b"} {
		if _, err := r.GetOrCreate(id); err == nil {
			t.Errorf("expected rejection for %q", id)
		}
	}
}

func TestClearResetsThread(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	th, _ := r.GetOrCreate("alice")
	if _, err := th.Memory.CreateOrVersion(ctx, memstore.CreateParams{
		Key: "user.name", Content: "Alice", MemoryType: "profile",
	}); err != nil {
		t.Fatal(err)
	}

	if err := r.Clear("alice"); err != nil {
		t.Fatal(err)
	}

	th, _ = r.GetOrCreate("alice")
	mems, err := th.Memory.List(ctx, memstore.ListParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mems) != 0 {
		t.Fatalf("cleared thread must start empty, got %d memories", len(mems))
	}
}

func TestListThreads(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	th, _ := r.GetOrCreate("alice")
	// List only reports threads with files on disk.
	th.Memory.CreateOrVersion(ctx, memstore.CreateParams{
		Key: "k", Content: "v", MemoryType: "fact",
	})

	ids, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("expected [alice], got %v", ids)
	}
}
