package corpus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/internal/model"
)

// pgPool is the subset of *pgxpool.Pool used by PostgresStore.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore keeps the corpus in a Postgres table.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS corpus_pages (
	url        TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	text       TEXT NOT NULL,
	ocr_images JSONB NOT NULL DEFAULT '[]',
	saved_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Save replaces the stored pages with c in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, c model.Corpus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	rollback := func(err error) error {
		_ = tx.Rollback(ctx)
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM corpus_pages`); err != nil {
		return rollback(eris.Wrap(err, "postgres: clear pages"))
	}

	for _, u := range c.URLs() {
		rec := c[u]
		images, err := json.Marshal(rec.ImageList())
		if err != nil {
			return rollback(eris.Wrapf(err, "postgres: marshal images for %s", u))
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO corpus_pages (url, title, text, ocr_images) VALUES ($1, $2, $3, $4::jsonb)`,
			u, rec.Title, rec.Text, string(images),
		); err != nil {
			return rollback(eris.Wrapf(err, "postgres: insert page %s", u))
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Load returns every stored page.
func (s *PostgresStore) Load(ctx context.Context) (model.Corpus, error) {
	rows, err := s.pool.Query(ctx, `SELECT url, title, text, ocr_images::text FROM corpus_pages`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query pages")
	}
	defer rows.Close()

	c := model.Corpus{}
	for rows.Next() {
		var (
			u, images string
			rec       model.PageRecord
		)
		if err := rows.Scan(&u, &rec.Title, &rec.Text, &images); err != nil {
			return nil, eris.Wrap(err, "postgres: scan page")
		}
		if err := json.Unmarshal([]byte(images), &rec.OCRImages); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal images for %s", u)
		}
		c[u] = rec
	}
	return c, eris.Wrap(rows.Err(), "postgres: iterate pages")
}
