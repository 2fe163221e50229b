package crawl

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/telco-assist/internal/resilience"
)

// Page is a fetched HTML document with its body decoded to UTF-8.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// HTTPFetcher fetches pages over net/http with a per-request timeout,
// politeness rate limit and retries on transient failures.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
	retry     resilience.Policy
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithRateLimit caps requests per second across all workers. rps <= 0
// disables the limit.
func WithRateLimit(rps float64) FetcherOption {
	return func(f *HTTPFetcher) {
		if rps <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p resilience.Policy) FetcherOption {
	return func(f *HTTPFetcher) { f.retry = p }
}

// NewHTTPFetcher creates an HTTPFetcher. maxBody <= 0 means 2 MiB.
func NewHTTPFetcher(userAgent string, timeout time.Duration, maxBody int64, opts ...FetcherOption) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBody <= 0 {
		maxBody = 2 << 20
	}
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: timeout,
				}).DialContext,
				TLSHandshakeTimeout: timeout,
			},
		},
		userAgent: userAgent,
		maxBody:   maxBody,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		retry:     resilience.DefaultPolicy(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs pageURL. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	return resilience.DoVal(ctx, f.retry, "crawl: fetch "+pageURL, func(ctx context.Context) (*Page, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "crawl: rate limit wait")
		}
		return f.fetchOnce(ctx, pageURL)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: create request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := resilience.StatusError("crawl: fetch "+pageURL, resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(decodeReader(io.LimitReader(resp.Body, f.maxBody), resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, eris.Wrap(err, "crawl: read body")
	}

	return &Page{
		URL:        pageURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// decodeReader converts r to UTF-8 using the charset declared in the
// Content-Type header. Unknown or missing charsets pass through unchanged.
func decodeReader(r io.Reader, contentType string) io.Reader {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return r
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return r
	}
	return enc.NewDecoder().Reader(r)
}
