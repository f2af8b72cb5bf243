// Package reindex recomputes the link graph from note content in atomic
// batches. A note's content hash is the memo key: notes whose hash matches the
// last indexed state keep their edges, every other note has its outgoing edges
// replaced wholesale.
//
// The engine does not serialize concurrent runs; callers must keep at most one
// batch in flight per store.
package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/ledger"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/resolver"
	"github.com/starford/notegraph/internal/wikilink"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for states and the run ledger.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs reindex batches against an EngineStore.
type Engine struct {
	store  index.EngineStore
	ledger *ledger.Ledger
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine.
func New(store index.EngineStore, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, logger: logger, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.ledger = ledger.New(store, e.now)
	return e
}

// Ledger exposes the run ledger the engine writes to.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

type resultCounters struct {
	total, indexed, skipped       int
	inserted, deleted, retargeted int
}

// Run executes one batch. Any mode other than models.ModeFull runs
// incrementally. On failure nothing of the batch is persisted, the ledger
// entry is marked failed and the returned error wraps apperr.ErrReindexFailed.
func (e *Engine) Run(ctx context.Context, mode string) (models.ReindexResult, error) {
	if mode != models.ModeFull {
		mode = models.ModeIncremental
	}
	clockStart := time.Now()

	entry, err := e.ledger.Begin(ctx, mode)
	if err != nil {
		observe(resultCounters{}, mode, models.RunFailed, time.Since(clockStart).Seconds())
		return models.ReindexResult{}, fmt.Errorf("reindex: %w: %w", apperr.ErrReindexFailed, err)
	}
	log := e.logger.With(slog.Int64("run_id", entry.ID()), slog.String("mode", mode))
	log.Info("reindex: started")

	c, err := e.apply(ctx, mode, log)
	finished := e.now()
	elapsed := time.Since(clockStart)

	if err != nil {
		if ferr := entry.Fail(ctx, err); ferr != nil {
			log.Error("reindex: record failure", slog.String("error", ferr.Error()))
		}
		observe(c, mode, models.RunFailed, elapsed.Seconds())
		log.Error("reindex: failed", slog.String("error", err.Error()), slog.Duration("elapsed", elapsed))
		return models.ReindexResult{}, fmt.Errorf("reindex: %w: %w", apperr.ErrReindexFailed, err)
	}

	res := models.ReindexResult{
		RunID:           entry.ID(),
		Mode:            mode,
		StartedAt:       entry.StartedAt(),
		FinishedAt:      finished,
		DurationMs:      finished.Sub(entry.StartedAt()).Milliseconds(),
		NotesTotal:      c.total,
		NotesIndexed:    c.indexed,
		NotesSkipped:    c.skipped,
		LinksInserted:   c.inserted,
		LinksDeleted:    c.deleted,
		LinksRetargeted: c.retargeted,
	}
	if err := entry.Succeed(ctx, res); err != nil {
		// The batch is committed; only its ledger row is missing.
		log.Error("reindex: record success", slog.String("error", err.Error()))
	}
	observe(c, mode, models.RunSuccess, elapsed.Seconds())
	log.Info("reindex: finished",
		slog.Int("notes_total", c.total),
		slog.Int("notes_indexed", c.indexed),
		slog.Int("notes_skipped", c.skipped),
		slog.Int("links_inserted", c.inserted),
		slog.Int("links_deleted", c.deleted),
		slog.Int("links_retargeted", c.retargeted),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

// apply loads the snapshot and performs every mutation in one unit of work.
func (e *Engine) apply(ctx context.Context, mode string, log *slog.Logger) (c resultCounters, err error) {
	notes, err := e.store.Notes(ctx)
	if err != nil {
		return c, fmt.Errorf("load notes: %w", err)
	}
	states := map[string]models.NoteState{}
	if mode != models.ModeFull {
		if states, err = e.store.NoteStates(ctx); err != nil {
			return c, fmt.Errorf("load states: %w", err)
		}
	}
	existing, err := e.store.Links(ctx)
	if err != nil {
		return c, fmt.Errorf("load links: %w", err)
	}

	titles := resolver.New(notes)
	for title, paths := range titles.Collisions() {
		log.Warn("reindex: title shared by several notes",
			slog.String("title", title), slog.String("paths", strings.Join(paths, ",")))
	}

	uow, err := e.store.Begin(ctx)
	if err != nil {
		return c, err
	}
	defer func() {
		if rerr := uow.Rollback(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if mode == models.ModeFull {
		if err := uow.ClearNoteStates(ctx); err != nil {
			return c, err
		}
	}

	indexedAt := e.now()
	skipped := make(map[string]bool)
	c.total = len(notes)
	for _, n := range notes {
		if st, ok := states[n.ID]; ok && st.ContentHash == n.ContentHash {
			skipped[n.ID] = true
			c.skipped++
			continue
		}

		deleted, err := uow.DeleteLinksFrom(ctx, n.ID)
		if err != nil {
			return c, err
		}
		rows := titles.Resolve(n.ID, wikilink.Extract(n.Content))
		inserted, err := uow.InsertLinks(ctx, rows)
		if err != nil {
			return c, err
		}
		if err := uow.UpsertNoteState(ctx, models.NoteState{
			NoteID:      n.ID,
			ContentHash: n.ContentHash,
			IndexedAt:   indexedAt,
		}); err != nil {
			return c, err
		}

		c.indexed++
		c.deleted += deleted
		c.inserted += inserted
		log.Debug("reindex: note indexed",
			slog.String("path", n.Path), slog.Int("links", inserted), slog.Int("replaced", deleted))
	}

	// Targets of unchanged notes still follow notes that appeared or vanished.
	for _, l := range existing {
		if !skipped[l.FromNoteID] {
			continue
		}
		toID, toPath := titles.Target(l.ToTitle)
		if l.SameTarget(toID, toPath) {
			continue
		}
		if err := uow.RetargetLink(ctx, l.ID, toID, toPath); err != nil {
			return c, err
		}
		c.retargeted++
	}

	if err := uow.Commit(); err != nil {
		return c, err
	}
	return c, nil
}
