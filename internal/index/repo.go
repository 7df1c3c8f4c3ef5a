package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/models"
)

// PageRow represents a row in the pages table.
type PageRow struct {
	Path      string
	Checksum  string
	Markdown  string
	UpdatedAt time.Time
}

// FigureRow represents a row in the figures table.
type FigureRow struct {
	Src     string
	Page    string
	Mime    string
	Content []byte
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Snippet string
}

// UpsertPage replaces a page, its figures, its FTS entry and its notebook
// dependencies within a transaction. deps maps notebook URLs to the checksum
// of the file the page was built from.
func (db *DB) UpsertPage(p PageRow, figures []FigureRow, deps map[string]string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO pages (path, checksum, markdown, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			markdown   = excluded.markdown,
			updated_at = excluded.updated_at
	`, p.Path, p.Checksum, p.Markdown, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert page: %w", err)
	}

	if err := ftsUpsert(tx, p.Path, p.Markdown); err != nil {
		return err
	}

	// Figure names are fresh on every conversion; drop the previous set.
	if _, err := tx.Exec(`DELETE FROM figures WHERE page = ?`, p.Path); err != nil {
		return fmt.Errorf("index: clear figures: %w", err)
	}
	if len(figures) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO figures (src, page, mime, content) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare figure insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range figures {
			if _, err := stmt.Exec(f.Src, p.Path, f.Mime, f.Content); err != nil {
				return fmt.Errorf("index: insert figure: %w", err)
			}
		}
	}

	_, _ = tx.Exec(`DELETE FROM dependencies WHERE page = ?`, p.Path)
	if len(deps) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO dependencies (page, notebook, checksum) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare dependency insert: %w", err)
		}
		defer stmt.Close()
		for nb, sum := range deps {
			if _, err := stmt.Exec(p.Path, nb, sum); err != nil {
				return fmt.Errorf("index: insert dependency: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeletePage removes a page with its figures, FTS entry and dependencies.
func (db *DB) DeletePage(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM dependencies WHERE page = ?`, path)
	_, _ = tx.Exec(`DELETE FROM figures WHERE page = ?`, path)
	_, _ = tx.Exec(`DELETE FROM pages WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a page, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM pages WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns the checksum of every indexed page keyed by path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// AllDependencies returns, per page, the checksum of every notebook it was
// built from keyed by URL.
func (db *DB) AllDependencies() (map[string]map[string]string, error) {
	rows, err := db.conn.Query(`SELECT page, notebook, checksum FROM dependencies`)
	if err != nil {
		return nil, fmt.Errorf("index: all dependencies: %w", err)
	}
	defer rows.Close()
	out := make(map[string]map[string]string)
	for rows.Next() {
		var page, nb, cs string
		if err := rows.Scan(&page, &nb, &cs); err != nil {
			return nil, err
		}
		if out[page] == nil {
			out[page] = make(map[string]string)
		}
		out[page][nb] = cs
	}
	return out, rows.Err()
}

// Dependents returns the pages whose directives reference the notebook URL.
func (db *DB) Dependents(notebook string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT page FROM dependencies WHERE notebook = ? ORDER BY page`, notebook)
	if err != nil {
		return nil, fmt.Errorf("index: dependents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetPage returns a converted page with references to its figures.
func (db *DB) GetPage(path string) (*models.Page, error) {
	p := &models.Page{Path: path}
	err := db.conn.QueryRow(`SELECT checksum, markdown, updated_at FROM pages WHERE path = ?`, path).
		Scan(&p.Checksum, &p.Markdown, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: page %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get page: %w", err)
	}

	rows, err := db.conn.Query(`SELECT src, mime, length(content) FROM figures WHERE page = ? ORDER BY src`, path)
	if err != nil {
		return nil, fmt.Errorf("index: page figures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		f := models.FigureRef{Page: path}
		if err := rows.Scan(&f.Src, &f.Mime, &f.Size); err != nil {
			return nil, err
		}
		p.Figures = append(p.Figures, f)
	}
	return p, rows.Err()
}

// ListPages returns metadata for every indexed page ordered by path.
func (db *DB) ListPages() ([]models.PageMetadata, error) {
	rows, err := db.conn.Query(`SELECT path, checksum, updated_at FROM pages ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: list pages: %w", err)
	}
	defer rows.Close()

	var out []models.PageMetadata
	for rows.Next() {
		var m models.PageMetadata
		if err := rows.Scan(&m.Path, &m.Checksum, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetFigure returns a stored figure by its file name.
func (db *DB) GetFigure(src string) (*FigureRow, error) {
	f := &FigureRow{Src: src}
	err := db.conn.QueryRow(`SELECT page, mime, content FROM figures WHERE src = ?`, src).
		Scan(&f.Page, &f.Mime, &f.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: figure %s: %w", src, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get figure: %w", err)
	}
	return f, nil
}
