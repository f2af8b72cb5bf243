// Package models defines the domain types shared by the indexing engine and its collaborators.
package models

import "time"

// Note is an imported Markdown file.
type Note struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Path        string    `json:"path"`
	Content     string    `json:"content,omitempty"`
	ContentHash string    `json:"content_hash"`
	Tags        []string  `json:"tags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	// TitleOverride marks a title given at import time; vault scans keep it.
	TitleOverride bool `json:"title_override,omitempty"`
}

// NoteSummary is the lightweight projection used by list and graph reads.
type NoteSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteState is the engine's memory of the content it last indexed for a note.
// A missing state means the note has never been indexed.
type NoteState struct {
	NoteID      string    `json:"note_id"`
	ContentHash string    `json:"content_hash"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// NoteFilter narrows note listings.
type NoteFilter struct {
	Tag    string
	Sort   string // "title", "path" or "updated_at" (default)
	Limit  int
	Offset int
}
