package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// UpsertNote inserts or updates a note, its search entry, and its tags within a transaction.
func (db *DB) UpsertNote(ctx context.Context, n models.Note) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM notes WHERE id = ?`, n.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("index: probe note: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, path, content, content_hash, updated_at, title_override)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title          = excluded.title,
			path           = excluded.path,
			content        = excluded.content,
			content_hash   = excluded.content_hash,
			updated_at     = excluded.updated_at,
			title_override = excluded.title_override
	`, n.ID, n.Title, n.Path, n.Content, n.ContentHash, n.UpdatedAt, n.TitleOverride)
	if err != nil {
		return false, fmt.Errorf("index: upsert note: %w", err)
	}

	if err := ftsUpsert(ctx, tx, n.ID, n.Title, n.Content); err != nil {
		return false, err
	}
	if err := replaceTags(ctx, tx, n.ID, n.Tags); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("index: commit note: %w", err)
	}
	return exists == 0, nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, noteID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("index: clear tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
			return fmt.Errorf("index: insert tag: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO note_tags (note_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?
		`, noteID, tag)
		if err != nil {
			return fmt.Errorf("index: link tag: %w", err)
		}
	}
	return nil
}

// DeleteNote removes a note. Outgoing links and indexing state cascade;
// inbound links become unresolved.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(ctx, tx, id)
	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return tx.Commit()
}

// GetNote returns a note with content and tags.
func (db *DB) GetNote(ctx context.Context, id string) (*models.Note, error) {
	return db.getNote(ctx, `id = ?`, id)
}

// GetNoteByPath returns the note stored at path.
func (db *DB) GetNoteByPath(ctx context.Context, path string) (*models.Note, error) {
	return db.getNote(ctx, `path = ?`, path)
}

func (db *DB) getNote(ctx context.Context, where string, arg any) (*models.Note, error) {
	var n models.Note
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, title, path, content, content_hash, updated_at, title_override
		FROM notes WHERE `+where, arg).
		Scan(&n.ID, &n.Title, &n.Path, &n.Content, &n.ContentHash, &n.UpdatedAt, &n.TitleOverride)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	tags, err := db.noteTags(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	n.Tags = tags
	return &n, nil
}

func (db *DB) noteTags(ctx context.Context, noteID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.name FROM note_tags nt JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id = ? ORDER BY t.name
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("index: note tags: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var sortColumns = map[string]string{
	"":           "updated_at DESC",
	"updated_at": "updated_at DESC",
	"title":      "title COLLATE NOCASE ASC",
	"path":       "path ASC",
}

// ListNotes returns a page of note summaries and the total matching count.
func (db *DB) ListNotes(ctx context.Context, f models.NoteFilter) ([]models.NoteSummary, int, error) {
	order, ok := sortColumns[f.Sort]
	if !ok {
		order = sortColumns[""]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		where strings.Builder
		args  []any
	)
	if f.Tag != "" {
		where.WriteString(` WHERE id IN (
			SELECT nt.note_id FROM note_tags nt JOIN tags t ON t.id = nt.tag_id WHERE t.name = ?)`)
		args = append(args, f.Tag)
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM notes`+where.String(), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, path, updated_at FROM notes`+where.String()+
			` ORDER BY `+order+`, id LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	out := []models.NoteSummary{}
	for rows.Next() {
		var s models.NoteSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Path, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// NotePaths maps every note path to its stored content hash.
func (db *DB) NotePaths(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, content_hash FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: note paths: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, rows.Err()
}

// Notes returns every note with content, ordered by path.
func (db *DB) Notes(ctx context.Context) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, path, content, content_hash, updated_at
		FROM notes ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("index: load notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Path, &n.Content, &n.ContentHash, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NoteSummaries returns id, title and path of every note, ordered by path.
func (db *DB) NoteSummaries(ctx context.Context) ([]models.NoteSummary, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, title, path, updated_at FROM notes ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: note summaries: %w", err)
	}
	defer rows.Close()

	out := []models.NoteSummary{}
	for rows.Next() {
		var s models.NoteSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Path, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// NoteStates returns the stored indexing state keyed by note id.
func (db *DB) NoteStates(ctx context.Context) (map[string]models.NoteState, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT note_id, content_hash, indexed_at FROM note_link_states`)
	if err != nil {
		return nil, fmt.Errorf("index: load states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.NoteState)
	for rows.Next() {
		var st models.NoteState
		if err := rows.Scan(&st.NoteID, &st.ContentHash, &st.IndexedAt); err != nil {
			return nil, err
		}
		out[st.NoteID] = st
	}
	return out, rows.Err()
}
