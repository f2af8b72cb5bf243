package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/notegraph/internal/models"
)

const linkColumns = `id, from_note_id, to_note_id, to_title, to_path, link_text, position`

// Links returns every edge ordered by source note and position.
func (db *DB) Links(ctx context.Context) ([]models.Link, error) {
	return db.queryLinks(ctx, `SELECT `+linkColumns+` FROM links ORDER BY from_note_id, position, id`)
}

// ResolvedLinks returns the edges whose target is a known note.
func (db *DB) ResolvedLinks(ctx context.Context) ([]models.Link, error) {
	return db.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE to_note_id IS NOT NULL
		ORDER BY from_note_id, position, id`)
}

// LinksTo returns edges written as [[title]] or resolved to one of noteIDs.
func (db *DB) LinksTo(ctx context.Context, title string, noteIDs []string) ([]models.Link, error) {
	q := `SELECT ` + linkColumns + ` FROM links WHERE to_title = ?`
	args := []any{title}
	if len(noteIDs) > 0 {
		q += ` OR to_note_id IN (?` + strings.Repeat(",?", len(noteIDs)-1) + `)`
		for _, id := range noteIDs {
			args = append(args, id)
		}
	}
	return db.queryLinks(ctx, q+` ORDER BY from_note_id, position, id`, args...)
}

// LinksFrom returns the outgoing edges of a note in position order.
func (db *DB) LinksFrom(ctx context.Context, noteID string) ([]models.Link, error) {
	return db.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE from_note_id = ? ORDER BY position, id`, noteID)
}

func (db *DB) queryLinks(ctx context.Context, q string, args ...any) ([]models.Link, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query links: %w", err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLink(rows *sql.Rows) (models.Link, error) {
	var (
		l                models.Link
		toNoteID, toPath sql.NullString
		linkText         sql.NullString
		position         sql.NullInt64
	)
	if err := rows.Scan(&l.ID, &l.FromNoteID, &toNoteID, &l.ToTitle, &toPath, &linkText, &position); err != nil {
		return l, fmt.Errorf("index: scan link: %w", err)
	}
	l.ToNoteID = nullable(toNoteID)
	l.ToPath = nullable(toPath)
	l.LinkText = linkText.String
	if l.LinkText == "" {
		l.LinkText = l.ToTitle
	}
	l.Position = int(position.Int64)
	return l, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
