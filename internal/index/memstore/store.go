// Package memstore is an in-memory implementation of the engine-facing link
// store interfaces. Units of work operate on a private copy that replaces the
// shared state only on Commit.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
)

// Unit-of-work operations passed to FailOn.
const (
	OpDeleteLinks = "delete_links"
	OpInsertLinks = "insert_links"
	OpRetarget    = "retarget_link"
	OpUpsertState = "upsert_state"
	OpClearStates = "clear_states"
	OpCommit      = "commit"
)

var errTxDone = errors.New("memstore: transaction already finished")

// Store holds notes, links, indexing states and runs in memory.
type Store struct {
	mu         sync.RWMutex
	notes      map[string]models.Note
	links      []models.Link
	states     map[string]models.NoteState
	runs       []models.IndexRun
	nextLinkID int64

	// FailOn, when set, is consulted before every unit-of-work operation;
	// a non-nil result fails that operation.
	FailOn func(op string) error
}

var (
	_ index.EngineStore = (*Store)(nil)
	_ index.GraphReader = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		notes:  make(map[string]models.Note),
		states: make(map[string]models.NoteState),
	}
}

// PutNote inserts or replaces a note, as an import would.
func (s *Store) PutNote(n models.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	s.notes[n.ID] = n
}

// DeleteNote removes a note with the same effects as the SQL schema: its own
// links and state go, inbound links become unresolved.
func (s *Store) DeleteNote(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return
	}
	delete(s.notes, id)
	delete(s.states, id)
	kept := s.links[:0]
	for _, l := range s.links {
		if l.FromNoteID == id {
			continue
		}
		if (l.ToNoteID != nil && *l.ToNoteID == id) || (l.ToPath != nil && *l.ToPath == n.Path) {
			l.ToNoteID, l.ToPath = nil, nil
		}
		kept = append(kept, l)
	}
	s.links = kept
}

// Notes returns every note ordered by path.
func (s *Store) Notes(_ context.Context) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Note, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// NoteSummaries projects Notes.
func (s *Store) NoteSummaries(ctx context.Context) ([]models.NoteSummary, error) {
	notes, _ := s.Notes(ctx)
	out := make([]models.NoteSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, models.NoteSummary{ID: n.ID, Title: n.Title, Path: n.Path, UpdatedAt: n.UpdatedAt})
	}
	return out, nil
}

// NoteStates returns a copy of the indexing states.
func (s *Store) NoteStates(_ context.Context) (map[string]models.NoteState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.NoteState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out, nil
}

// Links returns every edge ordered by source note and position.
func (s *Store) Links(_ context.Context) ([]models.Link, error) {
	return s.filterLinks(func(models.Link) bool { return true }), nil
}

// ResolvedLinks returns edges with a known target.
func (s *Store) ResolvedLinks(_ context.Context) ([]models.Link, error) {
	return s.filterLinks(models.Link.Resolved), nil
}

// LinksTo returns edges written as [[title]] or resolved to one of noteIDs.
func (s *Store) LinksTo(_ context.Context, title string, noteIDs []string) ([]models.Link, error) {
	ids := make(map[string]bool, len(noteIDs))
	for _, id := range noteIDs {
		ids[id] = true
	}
	return s.filterLinks(func(l models.Link) bool {
		return l.ToTitle == title || (l.ToNoteID != nil && ids[*l.ToNoteID])
	}), nil
}

// LinksFrom returns the outgoing edges of noteID in position order.
func (s *Store) LinksFrom(_ context.Context, noteID string) ([]models.Link, error) {
	return s.filterLinks(func(l models.Link) bool { return l.FromNoteID == noteID }), nil
}

func (s *Store) filterLinks(keep func(models.Link) bool) []models.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Link{}
	for _, l := range s.links {
		if keep(l) {
			out = append(out, copyLink(l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FromNoteID != out[j].FromNoteID {
			return out[i].FromNoteID < out[j].FromNoteID
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// StartRun appends a running ledger row.
func (s *Store) StartRun(_ context.Context, mode string, startedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.runs) + 1)
	s.runs = append(s.runs, models.IndexRun{ID: id, Mode: mode, Status: models.RunRunning, StartedAt: startedAt})
	return id, nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(_ context.Context, run models.IndexRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID < 1 || int(run.ID) > len(s.runs) {
		return fmt.Errorf("memstore: finish run %d: no such run", run.ID)
	}
	cur := &s.runs[run.ID-1]
	run.Mode, run.StartedAt = cur.Mode, cur.StartedAt
	*cur = run
	return nil
}

// Runs returns the newest runs first.
func (s *Store) Runs(_ context.Context, limit int) ([]models.IndexRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	out := []models.IndexRun{}
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

// LastSuccessfulRun returns the newest successful run or nil.
func (s *Store) LastSuccessfulRun(_ context.Context) (*models.IndexRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Status == models.RunSuccess {
			r := s.runs[i]
			return &r, nil
		}
	}
	return nil, nil
}

// Begin starts a unit of work over a copy of links and states.
func (s *Store) Begin(_ context.Context) (index.UnitOfWork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx := &tx{
		store:  s,
		links:  make([]models.Link, 0, len(s.links)),
		states: make(map[string]models.NoteState, len(s.states)),
		nextID: s.nextLinkID,
	}
	for _, l := range s.links {
		tx.links = append(tx.links, copyLink(l))
	}
	for k, v := range s.states {
		tx.states[k] = v
	}
	return tx, nil
}

type tx struct {
	store  *Store
	links  []models.Link
	states map[string]models.NoteState
	nextID int64
	done   bool
}

func (t *tx) check(op string) error {
	if t.done {
		return errTxDone
	}
	if t.store.FailOn != nil {
		if err := t.store.FailOn(op); err != nil {
			return fmt.Errorf("memstore: %s: %w", op, err)
		}
	}
	return nil
}

func (t *tx) DeleteLinksFrom(_ context.Context, noteID string) (int, error) {
	if err := t.check(OpDeleteLinks); err != nil {
		return 0, err
	}
	kept := t.links[:0]
	n := 0
	for _, l := range t.links {
		if l.FromNoteID == noteID {
			n++
			continue
		}
		kept = append(kept, l)
	}
	t.links = kept
	return n, nil
}

func (t *tx) InsertLinks(_ context.Context, links []models.Link) (int, error) {
	if err := t.check(OpInsertLinks); err != nil {
		return 0, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for i, l := range links {
		if _, ok := t.store.notes[l.FromNoteID]; !ok {
			return i, fmt.Errorf("memstore: insert link: unknown source note %q", l.FromNoteID)
		}
		t.nextID++
		l = copyLink(l)
		l.ID = t.nextID
		t.links = append(t.links, l)
	}
	return len(links), nil
}

func (t *tx) RetargetLink(_ context.Context, linkID int64, toNoteID, toPath *string) error {
	if err := t.check(OpRetarget); err != nil {
		return err
	}
	for i := range t.links {
		if t.links[i].ID == linkID {
			t.links[i].ToNoteID, t.links[i].ToPath = copyStr(toNoteID), copyStr(toPath)
			return nil
		}
	}
	return nil
}

func (t *tx) UpsertNoteState(_ context.Context, st models.NoteState) error {
	if err := t.check(OpUpsertState); err != nil {
		return err
	}
	t.states[st.NoteID] = st
	return nil
}

func (t *tx) ClearNoteStates(_ context.Context) error {
	if err := t.check(OpClearStates); err != nil {
		return err
	}
	t.states = make(map[string]models.NoteState)
	return nil
}

func (t *tx) Commit() error {
	if err := t.check(OpCommit); err != nil {
		return err
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.links = t.links
	t.store.states = t.states
	t.store.nextLinkID = t.nextID
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	return nil
}

func copyLink(l models.Link) models.Link {
	l.ToNoteID = copyStr(l.ToNoteID)
	l.ToPath = copyStr(l.ToPath)
	return l
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
