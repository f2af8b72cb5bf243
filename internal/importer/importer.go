// Package importer populates note rows from vault files. It keeps titles,
// content hashes and tags current and never touches links.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/storage"
)

// Entry names one vault file to import, with an optional title override.
type Entry struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// Validate checks the entry shape.
func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Path,
			validation.Required,
			validation.Length(1, 1024),
			validation.By(relativeMarkdownPath),
		),
		validation.Field(&e.Title, validation.Length(0, 512)),
	)
}

func relativeMarkdownPath(value any) error {
	p, _ := value.(string)
	p = checksum.NormalizePath(p)
	switch {
	case strings.HasPrefix(p, "/"):
		return errors.New("must be relative to the vault root")
	case p == ".." || strings.HasPrefix(p, "../"):
		return errors.New("must stay inside the vault")
	case !storage.IsMarkdown(p):
		return errors.New("must be a .md file")
	}
	return nil
}

// Importer reads vault files and upserts notes.
type Importer struct {
	notes  index.NoteRepository
	files  storage.Provider
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Importer.
func New(notes index.NoteRepository, files storage.Provider, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{notes: notes, files: files, logger: logger, now: time.Now}
}

// Import processes entries in order and reports one result per entry.
// Per-entry problems become statuses; Import itself never fails.
func (im *Importer) Import(ctx context.Context, entries []Entry) []models.ImportResult {
	out := make([]models.ImportResult, 0, len(entries))
	for _, e := range entries {
		out = append(out, im.importOne(ctx, e))
	}
	return out
}

func (im *Importer) importOne(ctx context.Context, e Entry) models.ImportResult {
	res := models.ImportResult{Path: e.Path}
	fail := func(err error) models.ImportResult {
		res.Status = models.ImportFailed
		res.Error = err.Error()
		im.logger.Warn("import: entry failed", slog.String("path", res.Path), slog.String("error", err.Error()))
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := e.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
	}
	p := checksum.NormalizePath(e.Path)
	res.Path = p

	data, err := im.files.Read(p)
	if errors.Is(err, fs.ErrNotExist) {
		res.Status = models.ImportMissing
		return res
	}
	if err != nil {
		return fail(err)
	}

	existing, err := im.notes.GetNoteByPath(ctx, p)
	if errors.Is(err, apperr.ErrNotFound) {
		existing, err = nil, nil
	}
	if err != nil {
		return fail(err)
	}

	// A title given at import time sticks until another one replaces it.
	override := strings.TrimSpace(e.Title)
	if override == "" && existing != nil && existing.TitleOverride {
		override = existing.Title
	}

	doc := parser.Parse(data)
	n := models.Note{
		ID:            checksum.NoteID(p),
		Title:         pickTitle(override, doc.Title, p),
		Path:          p,
		Content:       doc.Body,
		ContentHash:   checksum.Sum(data),
		Tags:          doc.Tags,
		UpdatedAt:     im.now(),
		TitleOverride: override != "",
	}
	res.NoteID = n.ID

	if existing != nil && existing.ContentHash == n.ContentHash &&
		existing.Title == n.Title && existing.TitleOverride == n.TitleOverride {
		res.NoteID = existing.ID
		res.Status = models.ImportSkipped
		return res
	}

	created, err := im.notes.UpsertNote(ctx, n)
	if err != nil {
		return fail(err)
	}
	res.Status = models.ImportUpdated
	if created {
		res.Status = models.ImportCreated
	}
	im.logger.Debug("import: note stored", slog.String("path", p), slog.String("status", res.Status))
	return res
}

// pickTitle applies the precedence entry title, then the document title
// (frontmatter or first H1), then the file stem.
func pickTitle(override, derived, p string) string {
	if t := strings.TrimSpace(override); t != "" {
		return t
	}
	if derived != "" {
		return derived
	}
	return parser.TitleFromPath(path.Base(p))
}

// ScanVault imports every Markdown file in the vault. With prune set, notes
// whose file no longer exists are deleted and reported as deleted.
func (im *Importer) ScanVault(ctx context.Context, prune bool) ([]models.ImportResult, error) {
	files, err := im.files.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("importer: scan: %w", err)
	}
	entries := make([]Entry, 0, len(files))
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		entries = append(entries, Entry{Path: f.Path})
		onDisk[f.Path] = true
	}
	results := im.Import(ctx, entries)

	if prune {
		known, err := im.notes.NotePaths(ctx)
		if err != nil {
			return results, fmt.Errorf("importer: scan: %w", err)
		}
		for p := range known {
			if onDisk[p] {
				continue
			}
			id := checksum.NoteID(p)
			if n, err := im.notes.GetNoteByPath(ctx, p); err == nil {
				id = n.ID
			}
			if err := im.notes.DeleteNote(ctx, id); err != nil {
				results = append(results, models.ImportResult{Path: p, NoteID: id, Status: models.ImportFailed, Error: err.Error()})
				continue
			}
			results = append(results, models.ImportResult{Path: p, NoteID: id, Status: models.ImportDeleted})
		}
	}

	counts := Summarize(results)
	im.logger.Info("import: vault scanned",
		slog.Int("files", len(files)),
		slog.Int("created", counts[models.ImportCreated]),
		slog.Int("updated", counts[models.ImportUpdated]),
		slog.Int("skipped", counts[models.ImportSkipped]),
		slog.Int("deleted", counts[models.ImportDeleted]),
		slog.Int("failed", counts[models.ImportFailed]),
	)
	return results, nil
}

// Summarize counts results by status.
func Summarize(results []models.ImportResult) map[string]int {
	out := make(map[string]int)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}

// Changed reports whether any result altered the note table.
func Changed(results []models.ImportResult) bool {
	for _, r := range results {
		switch r.Status {
		case models.ImportCreated, models.ImportUpdated, models.ImportDeleted:
			return true
		}
	}
	return false
}
