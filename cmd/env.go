package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/branch"
	"github.com/sells-group/telco-assist/internal/chat"
	"github.com/sells-group/telco-assist/internal/corpus"
	"github.com/sells-group/telco-assist/internal/llm"
	"github.com/sells-group/telco-assist/internal/locate"
	"github.com/sells-group/telco-assist/internal/model"
	"github.com/sells-group/telco-assist/internal/prompt"
	"github.com/sells-group/telco-assist/internal/resilience"
	"github.com/sells-group/telco-assist/internal/retrieve"
	"github.com/sells-group/telco-assist/internal/session"
)

// serveEnv holds the collaborators shared by serve and ask.
type serveEnv struct {
	Dispatcher *chat.Dispatcher
	Sessions   session.Store
	Pages      int
	Branches   int
}

// Close releases the session store.
func (e *serveEnv) Close() {
	if e.Sessions != nil {
		if err := e.Sessions.Close(); err != nil {
			zap.L().Warn("close session store", zap.Error(err))
		}
	}
}

func initServe(ctx context.Context) (*serveEnv, error) {
	if err := cfg.Validate("serve"); err != nil {
		return nil, err
	}

	pages := loadCorpus(ctx)
	branches := loadBranches()

	mode, err := retrieve.ParseMatchMode(cfg.Retrieval.MatchMode)
	if err != nil {
		return nil, err
	}

	resolver, err := initResolver(branches)
	if err != nil {
		return nil, err
	}

	gen, err := llm.New(cfg)
	if err != nil {
		return nil, err
	}

	sessions, err := session.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	d := chat.NewDispatcher(
		sessions,
		retrieve.NewRetriever(pages, cfg.Retrieval.TopN, mode),
		resolver,
		branch.NewDirectory(branches),
		gen,
		chat.Options{
			LLMTimeout: cfg.LLM.Timeout(),
			Template:   prompt.Template{Brand: cfg.Assistant.Brand, Site: cfg.Assistant.Site},
			LLMBreaker: resilience.BreakerFromConfig("llm", cfg.Circuit),
		},
	)

	return &serveEnv{
		Dispatcher: d,
		Sessions:   sessions,
		Pages:      len(pages),
		Branches:   len(branches),
	}, nil
}

func initResolver(branches []model.Branch) (*locate.Resolver, error) {
	geo, err := locate.NewGeocoder(cfg.Geocode)
	if err != nil {
		return nil, eris.Wrap(err, "init geocoder")
	}
	return locate.NewResolver(
		geo,
		branches,
		locate.OptionsFromConfig(cfg.Geocode, cfg.Branches),
		resilience.BreakerFromConfig("geocode", cfg.Circuit),
	), nil
}

// loadCorpus reads the persisted corpus. A missing or unreadable corpus is
// logged and served as empty.
func loadCorpus(ctx context.Context) model.Corpus {
	st, err := corpus.Open(ctx, cfg.Corpus)
	if err != nil {
		zap.L().Warn("open corpus failed, serving without pages", zap.Error(err))
		return model.Corpus{}
	}
	defer st.Close() //nolint:errcheck

	pages, err := st.Load(ctx)
	if err != nil {
		zap.L().Warn("load corpus failed, serving without pages",
			zap.String("path", cfg.Corpus.Path), zap.Error(err))
		return model.Corpus{}
	}
	return pages
}

// loadBranches reads the branch list. Failures are logged and yield none.
func loadBranches() []model.Branch {
	branches, err := branch.Load(cfg.Branches.Path)
	if err != nil {
		zap.L().Warn("load branches failed, serving without branches",
			zap.String("path", cfg.Branches.Path), zap.Error(err))
		return nil
	}
	return branches
}
