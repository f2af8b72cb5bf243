// Package index is the SQLite-backed link store: notes, tags, links, per-note
// indexing state and the index run ledger.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	path         TEXT NOT NULL UNIQUE,
	content      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	title_override INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title);

CREATE TABLE IF NOT EXISTS links (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	from_note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	to_note_id   TEXT REFERENCES notes(id) ON DELETE SET NULL,
	to_title     TEXT NOT NULL,
	to_path      TEXT,
	link_text    TEXT,
	position     INTEGER
);

CREATE INDEX IF NOT EXISTS idx_links_from_note_id ON links(from_note_id);
CREATE INDEX IF NOT EXISTS idx_links_to_note_id ON links(to_note_id);
CREATE INDEX IF NOT EXISTS idx_links_to_title ON links(to_title);

CREATE TABLE IF NOT EXISTS note_link_states (
	note_id      TEXT PRIMARY KEY REFERENCES notes(id) ON DELETE CASCADE,
	content_hash TEXT NOT NULL,
	indexed_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (note_id, tag_id)
);

CREATE TABLE IF NOT EXISTS index_runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	mode             TEXT NOT NULL DEFAULT 'incremental',
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME,
	status           TEXT NOT NULL,
	error            TEXT NOT NULL DEFAULT '',
	notes_total      INTEGER NOT NULL DEFAULT 0,
	notes_indexed    INTEGER NOT NULL DEFAULT 0,
	notes_skipped    INTEGER NOT NULL DEFAULT 0,
	links_inserted   INTEGER NOT NULL DEFAULT 0,
	links_deleted    INTEGER NOT NULL DEFAULT 0,
	links_retargeted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_index_runs_status ON index_runs(status, id);

-- A deleted target leaves its inbound edges unresolved; the denormalized path goes too.
CREATE TRIGGER IF NOT EXISTS trg_notes_unresolve_inbound
AFTER DELETE ON notes
BEGIN
	UPDATE links SET to_note_id = NULL, to_path = NULL WHERE to_path = OLD.path;
END;
`

// DB wraps a sql.DB with link store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// migrate adds columns introduced after a database file was created.
func migrate(conn *sql.DB) error {
	var n int
	err := conn.QueryRow(`SELECT count(*) FROM pragma_table_info('notes') WHERE name = 'title_override'`).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = conn.Exec(`ALTER TABLE notes ADD COLUMN title_override INTEGER NOT NULL DEFAULT 0`)
	return err
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
