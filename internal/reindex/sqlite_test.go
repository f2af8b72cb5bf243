package reindex

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
)

func sqliteStore(t *testing.T) *index.DB {
	t.Helper()
	f, err := os.CreateTemp("", "notegraph-reindex-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := index.Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func upsert(t *testing.T, db *index.DB, n models.Note) {
	t.Helper()
	n.UpdatedAt = time.Now()
	if _, err := db.UpsertNote(context.Background(), n); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
}

func TestSQLite_ScenarioAndIdempotence(t *testing.T) {
	db := sqliteStore(t)
	upsert(t, db, note("n1", "Alpha", "See [[Beta|B]]"))
	upsert(t, db, note("n2", "Beta", "No links"))
	e := New(db, quietLogger())

	first := mustRun(t, e, models.ModeIncremental)
	if first.NotesIndexed != 2 || first.LinksInserted != 1 {
		t.Errorf("first = %+v", first)
	}
	second := mustRun(t, e, models.ModeIncremental)
	if second.NotesIndexed != 0 || second.NotesSkipped != 2 || second.LinksInserted != 0 || second.LinksDeleted != 0 {
		t.Errorf("second = %+v", second)
	}

	links := linksFrom(t, db, "n1")
	if len(links) != 1 || links[0].ToNoteID == nil || *links[0].ToNoteID != "n2" || links[0].LinkText != "B" {
		t.Errorf("links = %+v", links)
	}

	runs, err := db.Runs(context.Background(), 10)
	if err != nil || len(runs) != 2 || runs[0].Status != models.RunSuccess || runs[0].NotesSkipped != 2 {
		t.Errorf("runs = %+v, %v", runs, err)
	}
}

func TestSQLite_DeletedTargetThenRecreated(t *testing.T) {
	ctx := context.Background()
	db := sqliteStore(t)
	upsert(t, db, note("a", "A", "[[T]]"))
	upsert(t, db, note("t", "T", ""))
	e := New(db, quietLogger())
	mustRun(t, e, models.ModeIncremental)

	if err := db.DeleteNote(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	links := linksFrom(t, db, "a")
	if len(links) != 1 || links[0].Resolved() || links[0].ToPath != nil {
		t.Fatalf("after delete links = %+v", links)
	}

	upsert(t, db, models.Note{ID: "t2", Title: "T", Path: "moved/t.md", ContentHash: "x"})
	res := mustRun(t, e, models.ModeIncremental)
	if res.LinksRetargeted != 1 {
		t.Errorf("run = %+v", res)
	}
	links = linksFrom(t, db, "a")
	if len(links) != 1 || links[0].ToNoteID == nil || *links[0].ToNoteID != "t2" || *links[0].ToPath != "moved/t.md" {
		t.Errorf("links = %+v", links)
	}
}

func TestSQLite_FullRebuild(t *testing.T) {
	db := sqliteStore(t)
	upsert(t, db, note("a", "A", "[[B]] [[B]]"))
	upsert(t, db, note("b", "B", ""))
	e := New(db, quietLogger())
	mustRun(t, e, models.ModeIncremental)

	res := mustRun(t, e, models.ModeFull)
	if res.NotesIndexed != 2 || res.LinksDeleted != 2 || res.LinksInserted != 2 {
		t.Errorf("full = %+v", res)
	}
	links := linksFrom(t, db, "a")
	if len(links) != 2 || links[0].Position != 0 || links[1].Position != 1 {
		t.Errorf("links = %+v", links)
	}
}
