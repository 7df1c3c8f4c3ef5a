// Package index keeps converted pages, their figures and the notebooks they
// depend on in SQLite, with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS pages (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	markdown   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS figures (
	src     TEXT PRIMARY KEY,
	page    TEXT NOT NULL REFERENCES pages(path) ON DELETE CASCADE,
	mime    TEXT NOT NULL,
	content BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS dependencies (
	page     TEXT NOT NULL,
	notebook TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	UNIQUE(page, notebook)
);

CREATE INDEX IF NOT EXISTS idx_figures_page ON figures(page);
CREATE INDEX IF NOT EXISTS idx_dependencies_notebook ON dependencies(notebook);
`

// DB wraps a sql.DB with index-specific operations.
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

// migrate brings databases created before dependency checksums existed up to
// the current schema.
func migrate(conn *sql.DB) error {
	if _, err := conn.Exec(`SELECT checksum FROM dependencies LIMIT 0`); err == nil {
		return nil
	}
	_, err := conn.Exec(`ALTER TABLE dependencies ADD COLUMN checksum TEXT NOT NULL DEFAULT ''`)
	return err
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
