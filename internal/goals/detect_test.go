package goals

import (
	"context"
	"testing"
	"time"

	"github.com/keepsake-dev/keepsake/internal/sqlitex"
)

// backdate rewrites timestamps directly; the public API always stamps now.
func backdate(t *testing.T, s *Store, query string, args ...interface{}) {
	t.Helper()
	db, err := sqlitex.Open(s.path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatal(err)
	}
}

func TestDetectStagnant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	quiet, _ := s.Create(ctx, CreateParams{Title: "quiet", Category: "longTerm"})
	active, _ := s.Create(ctx, CreateParams{Title: "active", Category: "longTerm"})
	s.UpdateProgress(ctx, active.ID, ProgressParams{Progress: 10})

	// quiet was created 30 days ago and never logged progress.
	backdate(t, s, `UPDATE goals SET created_at = ? WHERE id = ?`,
		sqlitex.FmtTime(now.AddDate(0, 0, -30)), quiet.ID)

	ids, err := s.DetectStagnant(ctx, now, 14*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != quiet.ID {
		t.Fatalf("expected only the quiet goal, got %v", ids)
	}
}

func TestDetectStagnantIgnoresTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	g, _ := s.Create(ctx, CreateParams{Title: "done", Category: "shortTerm"})
	s.Update(ctx, g.ID, UpdateParams{Status: ptr("completed")})
	backdate(t, s, `UPDATE goals SET created_at = ? WHERE id = ?`,
		sqlitex.FmtTime(now.AddDate(0, 0, -60)), g.ID)

	ids, err := s.DetectStagnant(ctx, now, 14*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("completed goals are not stagnant, got %v", ids)
	}
}

func TestDetectStalledProgress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	stalled, _ := s.Create(ctx, CreateParams{Title: "stalled", Category: "mediumTerm"})
	s.UpdateProgress(ctx, stalled.ID, ProgressParams{Progress: 30})
	backdate(t, s, `UPDATE goal_progress SET timestamp = ? WHERE goal_id = ?`,
		sqlitex.FmtTime(now.AddDate(0, 0, -45)), stalled.ID)

	// Never-started goals are DetectStagnant's business, not ours.
	s.Create(ctx, CreateParams{Title: "never started", Category: "mediumTerm"})

	ids, err := s.DetectStalledProgress(ctx, now, 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != stalled.ID {
		t.Fatalf("expected only the stalled goal, got %v", ids)
	}
}

func TestDetectUrgent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	soon := now.AddDate(0, 0, 3)
	far := now.AddDate(0, 0, 60)

	behind, _ := s.Create(ctx, CreateParams{Title: "behind", Category: "shortTerm", TargetDate: &soon})
	s.UpdateProgress(ctx, behind.ID, ProgressParams{Progress: 20})

	onTrack, _ := s.Create(ctx, CreateParams{Title: "on track", Category: "shortTerm", TargetDate: &soon})
	s.UpdateProgress(ctx, onTrack.ID, ProgressParams{Progress: 80})

	s.Create(ctx, CreateParams{Title: "distant", Category: "shortTerm", TargetDate: &far})
	s.Create(ctx, CreateParams{Title: "undated", Category: "shortTerm"})

	ids, err := s.DetectUrgent(ctx, now, 7*24*time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != behind.ID {
		t.Fatalf("expected only the behind goal, got %v", ids)
	}
}

func TestDetectStubsReturnNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Create(ctx, CreateParams{Title: "x", Category: "shortTerm"})

	if ids, err := s.DetectContradictions(ctx); err != nil || len(ids) != 0 {
		t.Fatalf("DetectContradictions: %v, %v", ids, err)
	}
	if ids, err := s.DetectExplicitChanges(ctx); err != nil || len(ids) != 0 {
		t.Fatalf("DetectExplicitChanges: %v, %v", ids, err)
	}
}
