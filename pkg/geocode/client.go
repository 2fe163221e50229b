// Package geocode resolves free-text place names to coordinates via
// OpenStreetMap Nominatim or the Google Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the provider has no match for the query.
var ErrNotFound = eris.New("geocode: location not found")

// Client geocodes a place name within a country.
type Client interface {
	// Geocode resolves query. country is appended to the query as a
	// disambiguation hint and may be empty.
	Geocode(ctx context.Context, query, country string) (*Result, error)
}

// Result holds the geocoding output for a place.
type Result struct {
	Latitude  float64
	Longitude float64
	Address   string // canonical display address from the provider
	Source    string // "nominatim" or "google"
}

// Option configures a provider.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	userAgent   string
	baseURL     string
	countryCode string
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. rps <= 0 disables it.
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		if rps <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header. Nominatim rejects requests
// without one.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithCountryCode restricts results to an ISO 3166-1 alpha-2 country.
func WithCountryCode(cc string) Option {
	return func(o *options) {
		o.countryCode = strings.ToLower(cc)
	}
}

func buildOptions(defaultBase string, defaultRPS float64, opts []Option) options {
	o := options{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(defaultRPS), 1),
		baseURL:    defaultBase,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// withCountry appends the country hint: "Kandy" -> "Kandy, Sri Lanka".
func withCountry(query, country string) string {
	query = strings.TrimSpace(query)
	if country == "" {
		return query
	}
	return query + ", " + country
}
