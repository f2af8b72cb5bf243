// Package graph derives backlinks and the visual note graph from persisted edges.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
)

// Backlink is a note that links to the requested title.
type Backlink struct {
	NoteID string `json:"note_id"`
	Path   string `json:"path"`
	Title  string `json:"title"`
	Label  string `json:"label"`
}

// Node is one note in the graph.
type Node struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Edge connects two notes by id.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the node/link structure consumed by graph views.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Edge `json:"links"`
}

// Builder answers read-time graph queries.
type Builder struct {
	reader index.GraphReader
}

// NewBuilder creates a Builder.
func NewBuilder(reader index.GraphReader) *Builder {
	return &Builder{reader: reader}
}

// Backlinks returns the distinct notes linking to title, either by the title
// as written or through a resolved edge to a note carrying that title. A note
// linking several times contributes one entry labelled by its first link.
func (b *Builder) Backlinks(ctx context.Context, title string) ([]Backlink, error) {
	title = strings.TrimSpace(title)
	out := []Backlink{}
	if title == "" {
		return out, nil
	}

	notes, err := b.reader.NoteSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: backlinks: %w", err)
	}
	byID := make(map[string]models.NoteSummary, len(notes))
	var targetIDs []string
	for _, n := range notes {
		byID[n.ID] = n
		if n.Title == title {
			targetIDs = append(targetIDs, n.ID)
		}
	}

	links, err := b.reader.LinksTo(ctx, title, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("graph: backlinks: %w", err)
	}

	first := make(map[string]models.Link)
	for _, l := range links {
		cur, seen := first[l.FromNoteID]
		if !seen || l.Position < cur.Position {
			first[l.FromNoteID] = l
		}
	}
	for from, l := range first {
		src, ok := byID[from]
		if !ok {
			continue
		}
		label := l.LinkText
		if label == "" {
			label = l.ToTitle
		}
		out = append(out, Backlink{NoteID: src.ID, Path: src.Path, Title: src.Title, Label: label})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// Graph returns every note as a node and every resolved edge as a link.
// Unresolved edges have no node to point at and are left out.
func (b *Builder) Graph(ctx context.Context) (*Graph, error) {
	notes, err := b.reader.NoteSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: nodes: %w", err)
	}
	links, err := b.reader.ResolvedLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: links: %w", err)
	}

	g := &Graph{Nodes: make([]Node, 0, len(notes)), Links: make([]Edge, 0, len(links))}
	known := make(map[string]bool, len(notes))
	for _, n := range notes {
		g.Nodes = append(g.Nodes, Node{ID: n.ID, Title: n.Title})
		known[n.ID] = true
	}
	for _, l := range links {
		if l.ToNoteID == nil || !known[l.FromNoteID] || !known[*l.ToNoteID] {
			continue
		}
		g.Links = append(g.Links, Edge{Source: l.FromNoteID, Target: *l.ToNoteID})
	}
	return g, nil
}
