package index

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "notegraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strp(s string) *string { return &s }

func putNote(t *testing.T, db *DB, id, title, path, content string, tags ...string) {
	t.Helper()
	_, err := db.UpsertNote(context.Background(), models.Note{
		ID: id, Title: title, Path: path, Content: content,
		ContentHash: "h-" + content, Tags: tags, UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("UpsertNote(%s): %v", path, err)
	}
}

func insertLinks(t *testing.T, db *DB, links ...models.Link) {
	t.Helper()
	ctx := context.Background()
	uow, err := db.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer uow.Rollback()
	if _, err := uow.InsertLinks(ctx, links); err != nil {
		t.Fatalf("InsertLinks: %v", err)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"notes", "links", "note_link_states", "tags", "note_tags", "index_runs"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestUpsertNote_CreatedThenUpdated(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := models.Note{ID: "n1", Title: "Alpha", Path: "alpha.md", Content: "v1", ContentHash: "1", Tags: []string{"go", "db"}, UpdatedAt: time.Now()}

	created, err := db.UpsertNote(ctx, n)
	if err != nil || !created {
		t.Fatalf("first upsert created=%v err=%v", created, err)
	}
	n.Content, n.ContentHash, n.Tags = "v2", "2", []string{"go"}
	created, err = db.UpsertNote(ctx, n)
	if err != nil || created {
		t.Fatalf("second upsert created=%v err=%v", created, err)
	}

	got, err := db.GetNote(ctx, "n1")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Content != "v2" || got.ContentHash != "2" {
		t.Errorf("note = %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "go" {
		t.Errorf("tags = %v, want [go]", got.Tags)
	}

	byPath, err := db.GetNoteByPath(ctx, "alpha.md")
	if err != nil || byPath.ID != "n1" {
		t.Errorf("GetNoteByPath = %+v, %v", byPath, err)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetNote(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListNotes_TagFilterAndSort(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	putNote(t, db, "b", "Bravo", "b.md", "x", "red")
	putNote(t, db, "a", "alpha", "a.md", "y", "red", "blue")
	putNote(t, db, "c", "Charlie", "c.md", "z")

	items, total, err := db.ListNotes(ctx, models.NoteFilter{Sort: "title"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(items) != 3 || items[0].Title != "alpha" || items[2].Title != "Charlie" {
		t.Errorf("sorted list = %+v (total %d)", items, total)
	}

	items, total, err = db.ListNotes(ctx, models.NoteFilter{Tag: "red", Sort: "path"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 || items[0].Path != "a.md" {
		t.Errorf("tag list = %+v (total %d)", items, total)
	}

	items, _, _ = db.ListNotes(ctx, models.NoteFilter{Sort: "path", Limit: 1, Offset: 1})
	if len(items) != 1 || items[0].Path != "b.md" {
		t.Errorf("page = %+v", items)
	}
}

func TestDeleteNote_CascadesAndUnresolvesInbound(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	putNote(t, db, "a", "A", "a.md", "[[B]]")
	putNote(t, db, "b", "B", "b.md", "[[A]]")
	insertLinks(t, db,
		models.Link{FromNoteID: "a", ToNoteID: strp("b"), ToTitle: "B", ToPath: strp("b.md"), LinkText: "B"},
		models.Link{FromNoteID: "b", ToNoteID: strp("a"), ToTitle: "A", ToPath: strp("a.md"), LinkText: "A"},
	)

	if err := db.DeleteNote(ctx, "b"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}

	links, err := db.Links(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %+v, want only a->B", links)
	}
	if links[0].FromNoteID != "a" || links[0].ToNoteID != nil || links[0].ToPath != nil {
		t.Errorf("inbound edge not unresolved: %+v", links[0])
	}
	if links[0].ToTitle != "B" {
		t.Errorf("to_title = %q, want B", links[0].ToTitle)
	}

	if err := db.DeleteNote(ctx, "b"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestBatch_CommitAndRollback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	putNote(t, db, "a", "A", "a.md", "x")

	uow, err := db.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uow.InsertLinks(ctx, []models.Link{{FromNoteID: "a", ToTitle: "Nowhere", LinkText: "Nowhere"}}); err != nil {
		t.Fatal(err)
	}
	if err := uow.UpsertNoteState(ctx, models.NoteState{NoteID: "a", ContentHash: "h", IndexedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := uow.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	links, _ := db.Links(ctx)
	states, _ := db.NoteStates(ctx)
	if len(links) != 0 || len(states) != 0 {
		t.Fatalf("rolled back batch leaked: links=%v states=%v", links, states)
	}

	uow, _ = db.Begin(ctx)
	_, _ = uow.InsertLinks(ctx, []models.Link{{FromNoteID: "a", ToTitle: "Nowhere", LinkText: "Nowhere", Position: 0}})
	_ = uow.UpsertNoteState(ctx, models.NoteState{NoteID: "a", ContentHash: "h", IndexedAt: time.Now()})
	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := uow.Rollback(); err != nil {
		t.Errorf("Rollback after commit should be a no-op, got %v", err)
	}

	links, _ = db.Links(ctx)
	states, _ = db.NoteStates(ctx)
	if len(links) != 1 || links[0].ToNoteID != nil {
		t.Errorf("links = %+v", links)
	}
	if states["a"].ContentHash != "h" {
		t.Errorf("states = %+v", states)
	}
}

func TestBatch_InsertUnknownSourceFails(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	uow, _ := db.Begin(ctx)
	defer uow.Rollback()
	if _, err := uow.InsertLinks(ctx, []models.Link{{FromNoteID: "ghost", ToTitle: "X"}}); err == nil {
		t.Error("expected foreign key violation for unknown source note")
	}
}

func TestBatch_RetargetAndDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	putNote(t, db, "a", "A", "a.md", "[[M]]")
	putNote(t, db, "m", "M", "m.md", "")
	insertLinks(t, db, models.Link{FromNoteID: "a", ToTitle: "M", LinkText: "M"})

	links, _ := db.Links(ctx)
	uow, _ := db.Begin(ctx)
	if err := uow.RetargetLink(ctx, links[0].ID, strp("m"), strp("m.md")); err != nil {
		t.Fatal(err)
	}
	_ = uow.Commit()

	links, _ = db.Links(ctx)
	if links[0].ToNoteID == nil || *links[0].ToNoteID != "m" {
		t.Fatalf("retarget failed: %+v", links[0])
	}

	uow, _ = db.Begin(ctx)
	n, err := uow.DeleteLinksFrom(ctx, "a")
	if err != nil || n != 1 {
		t.Fatalf("DeleteLinksFrom = %d, %v", n, err)
	}
	_ = uow.Commit()
	if links, _ = db.Links(ctx); len(links) != 0 {
		t.Errorf("links remain: %+v", links)
	}
}

func TestLinksTo_ByTitleOrTargetID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	putNote(t, db, "a", "A", "a.md", "")
	putNote(t, db, "b", "B", "b.md", "")
	putNote(t, db, "t", "Target", "t.md", "")
	insertLinks(t, db,
		models.Link{FromNoteID: "a", ToTitle: "Target", ToNoteID: strp("t"), ToPath: strp("t.md")},
		models.Link{FromNoteID: "b", ToTitle: "Elsewhere"},
	)

	got, err := db.LinksTo(ctx, "Target", nil)
	if err != nil || len(got) != 1 || got[0].FromNoteID != "a" {
		t.Fatalf("LinksTo(title) = %+v, %v", got, err)
	}
	got, _ = db.LinksTo(ctx, "Renamed", []string{"t"})
	if len(got) != 1 || got[0].FromNoteID != "a" {
		t.Errorf("LinksTo(ids) = %+v", got)
	}
	resolved, _ := db.ResolvedLinks(ctx)
	if len(resolved) != 1 {
		t.Errorf("ResolvedLinks = %+v", resolved)
	}
}

func TestRuns_Ledger(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if last, err := db.LastSuccessfulRun(ctx); err != nil || last != nil {
		t.Fatalf("LastSuccessfulRun on empty ledger = %+v, %v", last, err)
	}

	id1, err := db.StartRun(ctx, models.ModeFull, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	fin := time.Now()
	if err := db.FinishRun(ctx, models.IndexRun{ID: id1, Status: models.RunSuccess, FinishedAt: &fin, NotesIndexed: 3}); err != nil {
		t.Fatal(err)
	}
	id2, _ := db.StartRun(ctx, models.ModeIncremental, time.Now())
	_ = db.FinishRun(ctx, models.IndexRun{ID: id2, Status: models.RunFailed, FinishedAt: &fin, Error: "boom"})
	id3, _ := db.StartRun(ctx, models.ModeIncremental, time.Now())

	runs, err := db.Runs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 || runs[0].ID != id3 || runs[0].Status != models.RunRunning || runs[0].FinishedAt != nil {
		t.Errorf("runs = %+v", runs)
	}
	if runs[1].Error != "boom" {
		t.Errorf("failed run error = %q", runs[1].Error)
	}

	last, err := db.LastSuccessfulRun(ctx)
	if err != nil || last == nil || last.ID != id1 || last.NotesIndexed != 3 || last.Mode != models.ModeFull {
		t.Errorf("LastSuccessfulRun = %+v, %v", last, err)
	}

	if err := db.FinishRun(ctx, models.IndexRun{ID: 999, Status: models.RunSuccess}); err == nil {
		t.Error("finishing an unknown run should fail")
	}
}

func TestNotePaths(t *testing.T) {
	db := testDB(t)
	putNote(t, db, "a", "A", "a.md", "x")
	paths, err := db.NotePaths(context.Background())
	if err != nil || paths["a.md"] != "h-x" {
		t.Errorf("NotePaths = %v, %v", paths, err)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	putNote(t, db, "s", "Search Me", "s.md", "uniqueword appears here")

	results, err := db.Search(context.Background(), "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" || results[0].NoteID != "s" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestOpen_AddsTitleOverrideColumn(t *testing.T) {
	f, err := os.CreateTemp("", "notegraph-old-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	old, err := sql.Open("sqlite3", f.Name())
	if err != nil {
		t.Fatal(err)
	}
	_, err = old.Exec(`CREATE TABLE notes (
		id TEXT PRIMARY KEY, title TEXT NOT NULL DEFAULT '', path TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL DEFAULT '', content_hash TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)`)
	old.Close()
	if err != nil {
		t.Fatal(err)
	}

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	_, err = db.UpsertNote(ctx, models.Note{ID: "n1", Title: "Kept", Path: "n1.md", TitleOverride: true, UpdatedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	n, err := db.GetNote(ctx, "n1")
	if err != nil {
		t.Fatal(err)
	}
	if !n.TitleOverride {
		t.Error("title override not stored")
	}
}
