package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/history"
	"gamecatalog/internal/testsupport"
)

func TestRecordAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	older := history.Run{
		RunID:      "run-old",
		StartedAt:  base,
		FinishedAt: base.Add(90 * time.Second),
		Mode:       "replace",
		Requested:  10,
		Resolved:   10,
		Records:    12,
		FanOut:     1,
		Threshold:  5,
		Requests:   1,
	}
	newer := history.Run{
		RunID:      "run-new",
		StartedAt:  base.Add(time.Hour),
		FinishedAt: base.Add(time.Hour + time.Second),
		Mode:       "incremental",
		DryRun:     true,
		Requested:  10,
		Resolved:   2,
		Failed:     8,
		Records:    12,
		Threshold:  5,
		Requests:   14,
		FailedIDs:  []catalog.Identifier{3, 4, 5, 6, 7, 8, 9, 10},
	}
	for _, run := range []history.Run{older, newer} {
		if _, err := store.Record(ctx, run); err != nil {
			t.Fatalf("Record(%s) failed: %v", run.RunID, err)
		}
	}

	runs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-new" || runs[1].RunID != "run-old" {
		t.Fatalf("expected newest first, got %s then %s", runs[0].RunID, runs[1].RunID)
	}
	got := runs[0]
	got.ID = 0
	if diff := cmp.Diff(newer, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if runs[1].Duration() != 90*time.Second {
		t.Fatalf("expected 90s duration, got %s", runs[1].Duration())
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List(1) failed: %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != "run-new" {
		t.Fatalf("unexpected limited list %+v", limited)
	}
}

func TestRecordRejectsDuplicateAndEmptyRunID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	if _, err := store.Record(ctx, history.Run{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
	run := history.Run{RunID: "dup", StartedAt: time.Now(), FinishedAt: time.Now()}
	if _, err := store.Record(ctx, run); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	if _, err := store.Record(ctx, run); err == nil {
		t.Fatal("expected unique constraint error")
	}
}

func TestLatestAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no runs, got %+v", latest)
	}

	now := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		started := now.Add(time.Duration(i) * time.Millisecond)
		if _, err := store.Record(ctx, history.Run{RunID: id, StartedAt: started, FinishedAt: started}); err != nil {
			t.Fatalf("Record(%s) failed: %v", id, err)
		}
	}
	latest, err = store.Latest(ctx)
	if err != nil || latest == nil || latest.RunID != "c" {
		t.Fatalf("expected run c, got %+v (%v)", latest, err)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	db.Close()

	if _, err := history.Open(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := history.Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
