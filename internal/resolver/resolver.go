// Package resolver maps wiki-link titles to notes using a title index built
// once per reindex pass.
package resolver

import (
	"sort"
	"strings"

	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/wikilink"
)

// Target is the note a title resolves to.
type Target struct {
	NoteID string
	Path   string
}

// Resolver resolves titles against a fixed snapshot of notes.
type Resolver struct {
	byTitle    map[string]Target
	collisions map[string][]string
}

// New builds the title index. When several notes share a title the last one
// in notes wins; the clash is kept for Collisions.
func New(notes []models.Note) *Resolver {
	r := &Resolver{
		byTitle:    make(map[string]Target, len(notes)),
		collisions: make(map[string][]string),
	}
	owners := make(map[string][]string, len(notes))
	for _, n := range notes {
		title := strings.TrimSpace(n.Title)
		if title == "" {
			continue
		}
		r.byTitle[title] = Target{NoteID: n.ID, Path: n.Path}
		owners[title] = append(owners[title], n.Path)
	}
	for title, paths := range owners {
		if len(paths) > 1 {
			r.collisions[title] = paths
		}
	}
	return r
}

// Lookup returns the note a title resolves to.
func (r *Resolver) Lookup(title string) (Target, bool) {
	t, ok := r.byTitle[strings.TrimSpace(title)]
	return t, ok
}

// Resolve turns the occurrences extracted from one note into link rows.
// Unknown titles produce unresolved links rather than errors.
func (r *Resolver) Resolve(fromNoteID string, occ []wikilink.Occurrence) []models.Link {
	out := make([]models.Link, 0, len(occ))
	for _, o := range occ {
		l := models.Link{
			FromNoteID: fromNoteID,
			ToTitle:    o.Title,
			LinkText:   o.Label,
			Position:   o.Position,
		}
		l.ToNoteID, l.ToPath = r.target(o.Title)
		out = append(out, l)
	}
	return out
}

// Target returns the nullable target columns for title.
func (r *Resolver) Target(title string) (toNoteID, toPath *string) {
	return r.target(title)
}

func (r *Resolver) target(title string) (*string, *string) {
	t, ok := r.Lookup(title)
	if !ok {
		return nil, nil
	}
	id, p := t.NoteID, t.Path
	return &id, &p
}

// Collisions returns titles shared by more than one note, sorted, with the
// paths of every owner.
func (r *Resolver) Collisions() map[string][]string {
	out := make(map[string][]string, len(r.collisions))
	for title, paths := range r.collisions {
		cp := append([]string(nil), paths...)
		sort.Strings(cp)
		out[title] = cp
	}
	return out
}
