// Package ledger records one index run per reindex batch.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
)

// Ledger wraps a RunRepository with the running → success | failed lifecycle.
type Ledger struct {
	repo index.RunRepository
	now  func() time.Time
}

// New creates a Ledger. A nil clock means time.Now.
func New(repo index.RunRepository, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, now: now}
}

// Entry is a run that has been started but not yet finished.
type Entry struct {
	l         *Ledger
	id        int64
	mode      string
	startedAt time.Time
	finished  bool
}

// Begin records a running entry.
func (l *Ledger) Begin(ctx context.Context, mode string) (*Entry, error) {
	started := l.now()
	id, err := l.repo.StartRun(ctx, mode, started)
	if err != nil {
		return nil, fmt.Errorf("ledger: begin: %w", err)
	}
	return &Entry{l: l, id: id, mode: mode, startedAt: started}, nil
}

// ID returns the run id.
func (e *Entry) ID() int64 { return e.id }

// StartedAt returns the time the run was recorded.
func (e *Entry) StartedAt() time.Time { return e.startedAt }

// Succeed marks the run successful with the batch counters.
func (e *Entry) Succeed(ctx context.Context, res models.ReindexResult) error {
	fin := res.FinishedAt
	if fin.IsZero() {
		fin = e.l.now()
	}
	return e.finish(ctx, models.IndexRun{
		ID:              e.id,
		Mode:            e.mode,
		Status:          models.RunSuccess,
		StartedAt:       e.startedAt,
		FinishedAt:      &fin,
		NotesTotal:      res.NotesTotal,
		NotesIndexed:    res.NotesIndexed,
		NotesSkipped:    res.NotesSkipped,
		LinksInserted:   res.LinksInserted,
		LinksDeleted:    res.LinksDeleted,
		LinksRetargeted: res.LinksRetargeted,
	})
}

// Fail marks the run failed and stores the error text.
func (e *Entry) Fail(ctx context.Context, cause error) error {
	fin := e.l.now()
	run := models.IndexRun{
		ID:         e.id,
		Mode:       e.mode,
		Status:     models.RunFailed,
		StartedAt:  e.startedAt,
		FinishedAt: &fin,
	}
	if cause != nil {
		run.Error = cause.Error()
	}
	return e.finish(ctx, run)
}

func (e *Entry) finish(ctx context.Context, run models.IndexRun) error {
	if e.finished {
		return fmt.Errorf("ledger: run %d already finished: %w", e.id, apperr.ErrConflict)
	}
	// The outcome must be written even when the caller has gone away.
	if err := e.l.repo.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("ledger: finish: %w", err)
	}
	e.finished = true
	return nil
}

// Latest returns up to limit runs, newest first.
func (l *Ledger) Latest(ctx context.Context, limit int) ([]models.IndexRun, error) {
	runs, err := l.repo.Runs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	return runs, nil
}

// LastSuccess returns the run whose graph state is authoritative, or nil.
func (l *Ledger) LastSuccess(ctx context.Context) (*models.IndexRun, error) {
	run, err := l.repo.LastSuccessfulRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: last success: %w", err)
	}
	return run, nil
}
