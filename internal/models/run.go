package models

import "time"

// Reindex modes.
const (
	ModeIncremental = "incremental"
	ModeFull        = "full"
)

// Index run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// IndexRun is one row of the append-only run ledger.
type IndexRun struct {
	ID              int64      `json:"id"`
	Mode            string     `json:"mode"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	Error           string     `json:"error,omitempty"`
	NotesTotal      int        `json:"notes_total"`
	NotesIndexed    int        `json:"notes_indexed"`
	NotesSkipped    int        `json:"notes_skipped"`
	LinksInserted   int        `json:"links_inserted"`
	LinksDeleted    int        `json:"links_deleted"`
	LinksRetargeted int        `json:"links_retargeted"`
}

// ReindexResult summarizes one completed batch.
type ReindexResult struct {
	RunID           int64     `json:"run_id"`
	Mode            string    `json:"mode"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationMs      int64     `json:"duration_ms"`
	NotesTotal      int       `json:"notes_total"`
	NotesIndexed    int       `json:"notes_indexed"`
	NotesSkipped    int       `json:"notes_skipped"`
	LinksInserted   int       `json:"links_inserted"`
	LinksDeleted    int       `json:"links_deleted"`
	LinksRetargeted int       `json:"links_retargeted"`
}

// Import statuses reported per entry.
const (
	ImportCreated = "created"
	ImportUpdated = "updated"
	ImportSkipped = "skipped"
	ImportMissing = "missing"
	ImportFailed  = "failed"
	ImportDeleted = "deleted"
)

// ImportResult is the per-entry outcome of an import.
type ImportResult struct {
	Path   string `json:"path"`
	NoteID string `json:"note_id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
