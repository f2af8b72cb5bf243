package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/notegraph/internal/models"
)

const runColumns = `id, mode, status, started_at, finished_at, error,
	notes_total, notes_indexed, notes_skipped, links_inserted, links_deleted, links_retargeted`

// StartRun appends a running entry to the ledger and returns its id.
func (db *DB) StartRun(ctx context.Context, mode string, startedAt time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO index_runs (mode, started_at, status) VALUES (?, ?, ?)`,
		mode, startedAt, models.RunRunning)
	if err != nil {
		return 0, fmt.Errorf("index: start run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("index: start run: %w", err)
	}
	return id, nil
}

// FinishRun records the terminal status and counters of a run.
func (db *DB) FinishRun(ctx context.Context, run models.IndexRun) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE index_runs SET
			status = ?, finished_at = ?, error = ?,
			notes_total = ?, notes_indexed = ?, notes_skipped = ?,
			links_inserted = ?, links_deleted = ?, links_retargeted = ?
		WHERE id = ?
	`, run.Status, run.FinishedAt, run.Error,
		run.NotesTotal, run.NotesIndexed, run.NotesSkipped,
		run.LinksInserted, run.LinksDeleted, run.LinksRetargeted, run.ID)
	if err != nil {
		return fmt.Errorf("index: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: finish run %d: no such run", run.ID)
	}
	return nil
}

// Runs returns the most recent ledger entries, newest first.
func (db *DB) Runs(ctx context.Context, limit int) ([]models.IndexRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT `+runColumns+` FROM index_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: list runs: %w", err)
	}
	defer rows.Close()

	out := []models.IndexRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastSuccessfulRun returns the newest successful run, or nil if none exists.
func (db *DB) LastSuccessfulRun(ctx context.Context) (*models.IndexRun, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM index_runs WHERE status = ? ORDER BY id DESC LIMIT 1`, models.RunSuccess)
	if err != nil {
		return nil, fmt.Errorf("index: last run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRun(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRun(rows *sql.Rows) (models.IndexRun, error) {
	var (
		r        models.IndexRun
		finished sql.NullTime
	)
	err := rows.Scan(&r.ID, &r.Mode, &r.Status, &r.StartedAt, &finished, &r.Error,
		&r.NotesTotal, &r.NotesIndexed, &r.NotesSkipped,
		&r.LinksInserted, &r.LinksDeleted, &r.LinksRetargeted)
	if err != nil {
		return r, fmt.Errorf("index: scan run: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}
