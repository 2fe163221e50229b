package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/telco-assist/internal/model"
)

// SQLiteStore keeps one row per page using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create dir")
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pages (
	url        TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	text       TEXT NOT NULL,
	ocr_images TEXT NOT NULL DEFAULT '[]',
	saved_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save replaces the stored pages with c in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, c model.Corpus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages`); err != nil {
		return eris.Wrap(err, "sqlite: clear pages")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pages (url, title, text, ocr_images) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, u := range c.URLs() {
		rec := c[u]
		images, err := json.Marshal(rec.ImageList())
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal images for %s", u)
		}
		if _, err := stmt.ExecContext(ctx, u, rec.Title, rec.Text, string(images)); err != nil {
			return eris.Wrapf(err, "sqlite: insert page %s", u)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Load returns every stored page.
func (s *SQLiteStore) Load(ctx context.Context) (model.Corpus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, title, text, ocr_images FROM pages`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query pages")
	}
	defer rows.Close() //nolint:errcheck

	c := model.Corpus{}
	for rows.Next() {
		var (
			u, images string
			rec       model.PageRecord
		)
		if err := rows.Scan(&u, &rec.Title, &rec.Text, &images); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		if err := json.Unmarshal([]byte(images), &rec.OCRImages); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal images for %s", u)
		}
		c[u] = rec
	}
	return c, eris.Wrap(rows.Err(), "sqlite: iterate pages")
}
