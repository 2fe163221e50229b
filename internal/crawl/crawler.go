// Package crawl walks a website from a seed URL and turns every in-scope
// page into a PageRecord, including text read out of page images.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/telco-assist/internal/config"
	"github.com/sells-group/telco-assist/internal/metrics"
	"github.com/sells-group/telco-assist/internal/model"
)

// ImageReader returns the text found in an image, or false when the image
// was skipped or could not be read.
type ImageReader interface {
	ExtractText(ctx context.Context, imageURL string) (string, bool)
	Failed() []string
}

// Options bounds a crawl run.
type Options struct {
	// BaseURL is the scope prefix. Canonical URLs outside it are dropped.
	BaseURL        string
	MaxDepth       int
	Timeout        time.Duration
	Concurrency    int
	OCRConcurrency int
}

// OptionsFromConfig maps config sections onto Options.
func OptionsFromConfig(crawl config.CrawlConfig, ocr config.OCRConfig) Options {
	return Options{
		BaseURL:        crawl.BaseURL,
		MaxDepth:       crawl.MaxDepth,
		Timeout:        crawl.CrawlTimeout(),
		Concurrency:    crawl.Concurrency,
		OCRConcurrency: ocr.Concurrency,
	}
}

// Result is the outcome of one crawl run.
type Result struct {
	RunID        string
	Corpus       model.Corpus
	Visited      int
	Errors       int
	FailedImages []string
	TimedOut     bool
	Elapsed      time.Duration
}

// Crawler performs breadth-first crawls using a bounded worker pool.
type Crawler struct {
	opts    Options
	fetcher Fetcher
	images  ImageReader
	now     func() time.Time
}

// New creates a Crawler. images may be nil to skip OCR. BaseURL is put in
// canonical form so it compares against normalized page URLs.
func New(opts Options, fetcher Fetcher, images ImageReader) *Crawler {
	if base, err := Normalize(opts.BaseURL); err == nil {
		opts.BaseURL = base
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.OCRConcurrency <= 0 {
		opts.OCRConcurrency = 2
	}
	return &Crawler{opts: opts, fetcher: fetcher, images: images, now: time.Now}
}

type crawlItem struct {
	url   string
	depth int
}

// run holds the shared state of a single crawl. Workers wait on cond
// while the queue is empty and other pages are still being fetched.
type run struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []crawlItem
	active   int
	done     bool
	visited  map[string]struct{}
	corpus   model.Corpus
	errors   int
	timedOut bool
}

// Crawl walks the site starting at seed. Hitting the wall-clock budget is
// not an error: the pages gathered so far are returned with TimedOut set.
// An error is returned only if seed itself is unusable or ctx is cancelled
// by the caller; the partial result is still returned in the latter case.
func (c *Crawler) Crawl(ctx context.Context, seed string) (*Result, error) {
	if _, err := Normalize(seed); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "crawl"))
	runID := uuid.NewString()
	start := c.now()

	runCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	r := &run{
		queue:   []crawlItem{{url: seed, depth: 0}},
		visited: make(map[string]struct{}),
		corpus:  make(model.Corpus),
	}
	r.cond = sync.NewCond(&r.mu)
	stopWake := context.AfterFunc(runCtx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stopWake()

	log.Info("crawl: starting",
		zap.String("run_id", runID),
		zap.String("seed", seed),
		zap.String("base_url", c.opts.BaseURL),
		zap.Int("max_depth", c.opts.MaxDepth),
		zap.Duration("timeout", c.opts.Timeout),
	)

	g, gCtx := errgroup.WithContext(runCtx)
	g.SetLimit(c.opts.Concurrency)
	for range c.opts.Concurrency {
		g.Go(func() error {
			c.work(gCtx, log, r, start)
			return nil
		})
	}
	_ = g.Wait()

	if runCtx.Err() != nil && ctx.Err() == nil {
		r.timedOut = true
	}

	res := &Result{
		RunID:    runID,
		Corpus:   r.corpus,
		Visited:  len(r.visited),
		Errors:   r.errors,
		TimedOut: r.timedOut,
		Elapsed:  c.now().Sub(start),
	}
	if c.images != nil {
		res.FailedImages = c.images.Failed()
	}
	metrics.CrawlDuration.Observe(res.Elapsed.Seconds())

	log.Info("crawl: finished",
		zap.String("run_id", runID),
		zap.Int("pages", len(res.Corpus)),
		zap.Int("visited", res.Visited),
		zap.Int("errors", res.Errors),
		zap.Int("failed_images", len(res.FailedImages)),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("elapsed", res.Elapsed),
	)

	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "crawl: cancelled")
	}
	return res, nil
}

// work pulls items off the queue until the crawl is finished.
func (c *Crawler) work(ctx context.Context, log *zap.Logger, r *run, start time.Time) {
	for {
		item, ok := c.next(ctx, r, start)
		if !ok {
			return
		}
		c.visit(ctx, log, r, item)

		r.mu.Lock()
		r.active--
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

// next blocks until an item passes every guard or the crawl is over. The
// visited test-and-set happens under the same lock as the dequeue, so no
// canonical URL can be handed to two workers. The crawl is over when the
// queue is empty and no worker is fetching.
func (c *Crawler) next(ctx context.Context, r *run, start time.Time) (crawlItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.done || ctx.Err() != nil {
			return crawlItem{}, false
		}
		for len(r.queue) > 0 {
			item := r.queue[0]
			r.queue = r.queue[1:]

			if c.now().Sub(start) > c.opts.Timeout {
				r.timedOut = true
				r.finish()
				return crawlItem{}, false
			}
			if item.depth > c.opts.MaxDepth {
				continue
			}
			canonical, err := Normalize(item.url)
			if err != nil {
				continue
			}
			if _, seen := r.visited[canonical]; seen {
				continue
			}
			if !strings.HasPrefix(canonical, c.opts.BaseURL) {
				continue
			}
			r.visited[canonical] = struct{}{}
			r.active++
			return crawlItem{url: canonical, depth: item.depth}, true
		}
		if r.active == 0 {
			r.finish()
			return crawlItem{}, false
		}
		r.cond.Wait()
	}
}

// finish marks the run over and wakes idle workers. Callers hold r.mu.
func (r *run) finish() {
	r.done = true
	r.queue = nil
	r.cond.Broadcast()
}

// visit fetches one page, stores its record and queues its links. Errors
// are logged and counted; they never stop the crawl.
func (c *Crawler) visit(ctx context.Context, log *zap.Logger, r *run, item crawlItem) {
	log.Debug("crawl: visiting", zap.String("url", item.url), zap.Int("depth", item.depth))

	rec, links, err := c.scrape(ctx, item.url)
	if err != nil {
		metrics.CrawlPages.WithLabelValues(metrics.ResultError).Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Debug("crawl: page interrupted", zap.String("url", item.url), zap.Error(err))
		} else {
			log.Warn("crawl: page failed", zap.String("url", item.url), zap.Error(err))
		}
		r.mu.Lock()
		r.errors++
		r.mu.Unlock()
		return
	}
	metrics.CrawlPages.WithLabelValues(metrics.ResultOK).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.corpus[item.url]; !exists {
		r.corpus[item.url] = *rec
	}
	for _, link := range links {
		r.queue = append(r.queue, crawlItem{url: link, depth: item.depth + 1})
	}
}

func (c *Crawler) scrape(ctx context.Context, pageURL string) (*model.PageRecord, []string, error) {
	page, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil || page.FinalURL == "" {
		base, err = url.Parse(pageURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "crawl: parse page url")
		}
	}

	doc, err := extract(page.Body, base)
	if err != nil {
		return nil, nil, err
	}

	images := c.readImages(ctx, doc.Images)

	title := doc.Title
	if title == "" {
		title = pageURL
	}
	return &model.PageRecord{
		Title:     title,
		Text:      recordText(pageURL, doc.Text, images),
		OCRImages: images,
	}, doc.Links, nil
}

// readImages runs OCR over srcs with bounded parallelism, keeping document
// order. Images the reader rejects are left out. The result is never nil so
// pages without images persist as an empty list.
func (c *Crawler) readImages(ctx context.Context, srcs []string) []model.OCRImage {
	out := make([]model.OCRImage, 0, len(srcs))
	if c.images == nil || len(srcs) == 0 {
		return out
	}

	type slot struct {
		text string
		ok   bool
	}
	slots := make([]slot, len(srcs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.OCRConcurrency)
	for i, src := range srcs {
		g.Go(func() error {
			text, ok := c.images.ExtractText(gCtx, src)
			slots[i] = slot{text: text, ok: ok}
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range slots {
		if s.ok {
			out = append(out, model.OCRImage{Src: srcs[i], Text: s.text})
		}
	}
	return out
}

// recordText lays out the stored page text: a URL header, the body text,
// then the non-empty OCR snippets one per line.
func recordText(pageURL, text string, images []model.OCRImage) string {
	var ocr []string
	for _, img := range images {
		if img.Text != "" {
			ocr = append(ocr, img.Text)
		}
	}
	return fmt.Sprintf("Page URL: %s\n\n%s\n\nOCR Content:\n", pageURL, text) + strings.Join(ocr, "\n")
}
