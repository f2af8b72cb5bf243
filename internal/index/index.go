package index

import (
	"context"
	"time"

	"github.com/starford/notegraph/internal/models"
)

// Snapshot is the read side the reindex engine loads once per batch.
type Snapshot interface {
	// Notes returns every note with content, ordered by path.
	Notes(ctx context.Context) ([]models.Note, error)
	// NoteStates returns the last indexed fingerprint per note id.
	NoteStates(ctx context.Context) (map[string]models.NoteState, error)
	// Links returns every persisted edge ordered by source note and position.
	Links(ctx context.Context) ([]models.Link, error)
}

// UnitOfWork groups the edge and state mutations of one reindex batch.
// Nothing is visible to other readers until Commit; Rollback discards all of it.
type UnitOfWork interface {
	DeleteLinksFrom(ctx context.Context, noteID string) (int, error)
	InsertLinks(ctx context.Context, links []models.Link) (int, error)
	RetargetLink(ctx context.Context, linkID int64, toNoteID, toPath *string) error
	UpsertNoteState(ctx context.Context, st models.NoteState) error
	ClearNoteStates(ctx context.Context) error
	Commit() error
	// Rollback is safe to call after Commit.
	Rollback() error
}

// Batcher opens units of work.
type Batcher interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// RunRepository persists the index run ledger.
type RunRepository interface {
	StartRun(ctx context.Context, mode string, startedAt time.Time) (int64, error)
	FinishRun(ctx context.Context, run models.IndexRun) error
	Runs(ctx context.Context, limit int) ([]models.IndexRun, error)
	// LastSuccessfulRun returns nil when no batch has succeeded yet.
	LastSuccessfulRun(ctx context.Context) (*models.IndexRun, error)
}

// GraphReader is the read side of backlink and graph derivation.
type GraphReader interface {
	NoteSummaries(ctx context.Context) ([]models.NoteSummary, error)
	// ResolvedLinks returns edges whose target is a known note.
	ResolvedLinks(ctx context.Context) ([]models.Link, error)
	// LinksTo returns edges whose to_title equals title or whose target is one of noteIDs.
	LinksTo(ctx context.Context, title string, noteIDs []string) ([]models.Link, error)
	// LinksFrom returns the outgoing edges of one note in position order.
	LinksFrom(ctx context.Context, noteID string) ([]models.Link, error)
}

// EngineStore is everything the reindex engine needs from storage.
type EngineStore interface {
	Snapshot
	Batcher
	RunRepository
}

// NoteRepository is the note bookkeeping used by import and read APIs.
// It never touches links.
type NoteRepository interface {
	// UpsertNote inserts or updates a note and replaces its tags.
	UpsertNote(ctx context.Context, n models.Note) (created bool, err error)
	GetNote(ctx context.Context, id string) (*models.Note, error)
	GetNoteByPath(ctx context.Context, path string) (*models.Note, error)
	DeleteNote(ctx context.Context, id string) error
	ListNotes(ctx context.Context, f models.NoteFilter) ([]models.NoteSummary, int, error)
	// NotePaths maps every note path to its content hash.
	NotePaths(ctx context.Context) (map[string]string, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchResult represents one search hit.
type SearchResult struct {
	NoteID  string `json:"note_id"`
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Verify *DB satisfies the storage interfaces at compile time.
var (
	_ EngineStore    = (*DB)(nil)
	_ GraphReader    = (*DB)(nil)
	_ NoteRepository = (*DB)(nil)
)
