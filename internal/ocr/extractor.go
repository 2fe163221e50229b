package ocr

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/config"
	"github.com/sells-group/telco-assist/internal/metrics"
)

const maxImageBytes = 20 << 20

// ExtractorOptions tunes which images are worth sending to the engine.
type ExtractorOptions struct {
	SkipExtensions []string
	MinBytes       int
	Timeout        time.Duration
	UserAgent      string
}

// OptionsFromConfig maps the ocr config section onto ExtractorOptions.
func OptionsFromConfig(cfg config.OCRConfig, userAgent string) ExtractorOptions {
	return ExtractorOptions{
		SkipExtensions: cfg.SkipExtensions,
		MinBytes:       cfg.MinBytes,
		Timeout:        time.Duration(cfg.ImageTimeoutSecs) * time.Second,
		UserAgent:      userAgent,
	}
}

// ImageExtractor downloads images and runs them through an Engine. Failures
// never surface to the caller; the image URL is remembered in the failed set
// instead.
type ImageExtractor struct {
	engine Engine
	opts   ExtractorOptions
	client *http.Client

	mu     sync.Mutex
	failed map[string]struct{}
}

// NewImageExtractor creates an extractor. client may be nil.
func NewImageExtractor(engine Engine, opts ExtractorOptions, client *http.Client) *ImageExtractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MinBytes < 0 {
		opts.MinBytes = 0
	}
	if client == nil {
		client = &http.Client{}
	}
	return &ImageExtractor{
		engine: engine,
		opts:   opts,
		client: client,
		failed: make(map[string]struct{}),
	}
}

// ExtractText returns the trimmed text found in the image at imageURL. The
// bool is false when the image was skipped or anything went wrong. A true
// result may still carry an empty string.
func (e *ImageExtractor) ExtractText(ctx context.Context, imageURL string) (string, bool) {
	if e.Skippable(imageURL) {
		metrics.CrawlImages.WithLabelValues(metrics.ResultSkipped).Inc()
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	data, err := e.fetch(ctx, imageURL)
	if err != nil {
		e.fail(imageURL, err)
		return "", false
	}
	if len(data) < e.opts.MinBytes {
		metrics.CrawlImages.WithLabelValues(metrics.ResultSkipped).Inc()
		return "", false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		e.fail(imageURL, eris.Wrap(err, "ocr: decode image"))
		return "", false
	}

	text, err := e.engine.Recognize(ctx, toRGBA(img))
	if err != nil {
		e.fail(imageURL, err)
		return "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.CrawlImages.WithLabelValues(metrics.ResultEmpty).Inc()
	} else {
		metrics.CrawlImages.WithLabelValues(metrics.ResultOK).Inc()
	}
	return text, true
}

// Skippable reports whether the URL path ends in one of the skipped
// extensions. The comparison ignores case.
func (e *ImageExtractor) Skippable(imageURL string) bool {
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, skip := range e.opts.SkipExtensions {
		if strings.ToLower(skip) == ext {
			return true
		}
	}
	return false
}

// Failed returns the image URLs that could not be processed, sorted.
func (e *ImageExtractor) Failed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.failed))
	for u := range e.failed {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (e *ImageExtractor) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create image request")
	}
	if e.opts.UserAgent != "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: fetch image")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("ocr: image returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read image")
	}
	return data, nil
}

func (e *ImageExtractor) fail(imageURL string, err error) {
	metrics.CrawlImages.WithLabelValues(metrics.ResultError).Inc()
	zap.L().Debug("ocr: image failed", zap.String("url", imageURL), zap.Error(err))

	e.mu.Lock()
	e.failed[imageURL] = struct{}{}
	e.mu.Unlock()
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
