// Package corpus persists the crawled page collection.
package corpus

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/internal/config"
	"github.com/sells-group/telco-assist/internal/model"
)

// Store saves and loads a whole corpus. Save replaces any previous contents.
type Store interface {
	Save(ctx context.Context, c model.Corpus) error
	Load(ctx context.Context) (model.Corpus, error)
	Close() error
}

// Open returns the Store selected by cfg.Driver, migrated and ready to use.
func Open(ctx context.Context, cfg config.CorpusConfig) (Store, error) {
	switch cfg.Driver {
	case "json", "":
		return NewJSONStore(cfg.Path), nil
	case "sqlite":
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("corpus: unknown driver %q", cfg.Driver)
	}
}
