package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/notegraph/internal/models"
)

// batch is the SQLite UnitOfWork: one transaction for the whole reindex batch.
type batch struct {
	tx         *sql.Tx
	insertStmt *sql.Stmt
}

// Begin opens the transaction that carries a reindex batch.
func (db *DB) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin batch: %w", err)
	}
	return &batch{tx: tx}, nil
}

func (b *batch) DeleteLinksFrom(ctx context.Context, noteID string) (int, error) {
	res, err := b.tx.ExecContext(ctx, `DELETE FROM links WHERE from_note_id = ?`, noteID)
	if err != nil {
		return 0, fmt.Errorf("index: delete links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("index: delete links: %w", err)
	}
	return int(n), nil
}

func (b *batch) InsertLinks(ctx context.Context, links []models.Link) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}
	if b.insertStmt == nil {
		stmt, err := b.tx.PrepareContext(ctx, `
			INSERT INTO links (from_note_id, to_note_id, to_title, to_path, link_text, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("index: prepare link insert: %w", err)
		}
		b.insertStmt = stmt
	}
	for i, l := range links {
		_, err := b.insertStmt.ExecContext(ctx,
			l.FromNoteID, nullString(l.ToNoteID), l.ToTitle, nullString(l.ToPath), l.LinkText, l.Position)
		if err != nil {
			return i, fmt.Errorf("index: insert link: %w", err)
		}
	}
	return len(links), nil
}

func (b *batch) RetargetLink(ctx context.Context, linkID int64, toNoteID, toPath *string) error {
	_, err := b.tx.ExecContext(ctx, `UPDATE links SET to_note_id = ?, to_path = ? WHERE id = ?`,
		nullString(toNoteID), nullString(toPath), linkID)
	if err != nil {
		return fmt.Errorf("index: retarget link: %w", err)
	}
	return nil
}

func (b *batch) UpsertNoteState(ctx context.Context, st models.NoteState) error {
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO note_link_states (note_id, content_hash, indexed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			indexed_at   = excluded.indexed_at
	`, st.NoteID, st.ContentHash, st.IndexedAt)
	if err != nil {
		return fmt.Errorf("index: upsert state: %w", err)
	}
	return nil
}

func (b *batch) ClearNoteStates(ctx context.Context) error {
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM note_link_states`); err != nil {
		return fmt.Errorf("index: clear states: %w", err)
	}
	return nil
}

func (b *batch) Commit() error {
	b.closeStmt()
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("index: commit batch: %w", err)
	}
	return nil
}

func (b *batch) Rollback() error {
	b.closeStmt()
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("index: rollback batch: %w", err)
	}
	return nil
}

func (b *batch) closeStmt() {
	if b.insertStmt != nil {
		_ = b.insertStmt.Close()
		b.insertStmt = nil
	}
}
