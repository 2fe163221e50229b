package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/corpus"
	"github.com/sells-group/telco-assist/internal/crawl"
	"github.com/sells-group/telco-assist/internal/ocr"
	"github.com/sells-group/telco-assist/internal/resilience"
)

var (
	crawlSeed        string
	crawlDepth       int
	crawlTimeout     time.Duration
	crawlOut         string
	crawlConcurrency int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the site and write the page corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyCrawlFlags(); err != nil {
			return err
		}
		if err := cfg.Validate("crawl"); err != nil {
			return err
		}

		images, err := initImageReader()
		if err != nil {
			return err
		}

		fetcher := crawl.NewHTTPFetcher(
			cfg.Crawl.UserAgent,
			cfg.Crawl.RequestTimeout(),
			int64(cfg.Crawl.MaxBodyKB)*1024,
			crawl.WithRateLimit(cfg.Crawl.RequestsPerSecond),
			crawl.WithRetryPolicy(resilience.PolicyFromConfig(cfg.Retry)),
		)
		crawler := crawl.New(crawl.OptionsFromConfig(cfg.Crawl, cfg.OCR), fetcher, images)

		seed := cfg.Crawl.SeedURL
		if seed == "" {
			seed = cfg.Crawl.BaseURL
		}

		res, err := crawler.Crawl(ctx, seed)
		if res == nil {
			return err
		}
		if err != nil {
			zap.L().Warn("crawl interrupted, saving partial corpus", zap.Error(err))
		}

		st, err := corpus.Open(ctx, cfg.Corpus)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Save even when interrupted; the partial corpus is still usable.
		if err := st.Save(context.WithoutCancel(ctx), res.Corpus); err != nil {
			return eris.Wrap(err, "save corpus")
		}

		zap.L().Info("corpus saved",
			zap.String("run_id", res.RunID),
			zap.String("driver", cfg.Corpus.Driver),
			zap.String("path", cfg.Corpus.Path),
			zap.Int("pages", len(res.Corpus)),
		)
		for _, src := range res.FailedImages {
			zap.L().Info("image not processed", zap.String("src", src))
		}
		return nil
	},
}

// applyCrawlFlags overrides config with any flags set on the command line.
// The crawl budget is kept in whole seconds, rounded up.
func applyCrawlFlags() error {
	if crawlSeed != "" {
		cfg.Crawl.SeedURL = crawlSeed
	}
	if crawlDepth >= 0 {
		cfg.Crawl.MaxDepth = crawlDepth
	}
	if crawlTimeout < 0 || (crawlTimeout > 0 && crawlTimeout < time.Second) {
		return eris.Errorf("crawl: --timeout must be at least 1s, got %s", crawlTimeout)
	}
	if crawlTimeout > 0 {
		cfg.Crawl.TimeoutSecs = int((crawlTimeout + time.Second - 1) / time.Second)
	}
	if crawlOut != "" {
		cfg.Corpus.Path = crawlOut
	}
	if crawlConcurrency > 0 {
		cfg.Crawl.Concurrency = crawlConcurrency
	}
	return nil
}

// initImageReader returns nil when OCR is disabled.
func initImageReader() (crawl.ImageReader, error) {
	engine, err := ocr.NewEngine(cfg.OCR)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		zap.L().Info("ocr disabled")
		return nil, nil
	}
	return ocr.NewImageExtractor(
		engine,
		ocr.OptionsFromConfig(cfg.OCR, cfg.Crawl.UserAgent),
		&http.Client{},
	), nil
}

func init() {
	crawlCmd.Flags().StringVar(&crawlSeed, "seed", "", "seed URL (default crawl.seed_url or crawl.base_url)")
	crawlCmd.Flags().IntVar(&crawlDepth, "depth", -1, "max link depth (default from config)")
	crawlCmd.Flags().DurationVar(&crawlTimeout, "timeout", 0, "crawl wall-clock budget (default from config)")
	crawlCmd.Flags().StringVar(&crawlOut, "out", "", "corpus path (default corpus.path)")
	crawlCmd.Flags().IntVar(&crawlConcurrency, "concurrency", 0, "parallel page fetches (default from config)")
	rootCmd.AddCommand(crawlCmd)
}
