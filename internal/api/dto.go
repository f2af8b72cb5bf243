package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/importer"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
)

// maxImportEntries caps one import request.
const maxImportEntries = 1000

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.NoteSummary `json:"notes"`
	Total int                  `json:"total" example:"42"`
}

// ImportEntry names a vault file to import.
type ImportEntry struct {
	Path  string `json:"path" example:"topics/go.md"`
	Title string `json:"title,omitempty" example:"Go"`
}

// ImportRequest is the body of POST /api/import. With Scan set the whole
// vault is imported and Entries is ignored.
type ImportRequest struct {
	Entries []ImportEntry `json:"entries"`
	Scan    bool          `json:"scan,omitempty"`
	Prune   bool          `json:"prune,omitempty"`
}

// Validate checks the request shape; per-entry problems are reported as
// entry statuses instead.
func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Entries,
			validation.When(!r.Scan, validation.Required),
			validation.Length(0, maxImportEntries),
		),
	)
}

func (r ImportRequest) entries() []importer.Entry {
	out := make([]importer.Entry, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = importer.Entry{Path: e.Path, Title: e.Title}
	}
	return out
}

// ImportResponse reports one result per entry plus counts by status.
type ImportResponse struct {
	Results []models.ImportResult `json:"results"`
	Summary map[string]int        `json:"summary"`
}

// ReindexResponse is the batch summary returned by POST /api/reindex.
type ReindexResponse = models.ReindexResult

// RunsResponse lists ledger entries and the authoritative run.
type RunsResponse struct {
	Runs        []models.IndexRun `json:"runs"`
	LastSuccess *models.IndexRun  `json:"last_success"`
}

// BacklinksResponse lists the notes linking to a title.
type BacklinksResponse struct {
	Title     string           `json:"title" example:"Beta"`
	Backlinks []graph.Backlink `json:"backlinks"`
}

// GraphResponse is the node/link graph.
type GraphResponse = graph.Graph

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}
