// Package locate finds the branches nearest to a free-text place name.
package locate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/config"
	"github.com/sells-group/telco-assist/internal/metrics"
	"github.com/sells-group/telco-assist/internal/model"
	"github.com/sells-group/telco-assist/internal/resilience"
	"github.com/sells-group/telco-assist/pkg/geocode"
)

// DefaultTopN is the number of branches listed when none is configured.
const DefaultTopN = 3

// Replies rendered by Respond.
const (
	MsgClarify  = "📍 Please tell me your city to find nearby branches. For example: 'Find branches near Kandy'"
	MsgNotFound = "❌ Sorry, I couldn't find that location. Please try with a nearby city or town."
)

var vaguePhrases = map[string]bool{
	"me":          true,
	"here":        true,
	"near":        true,
	"my location": true,
}

// IsVague reports whether input names no place at all, like "near me".
func IsVague(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	return strings.Contains(s, "near me") || vaguePhrases[s]
}

// Result is a resolved place and the branches nearest to it.
type Result struct {
	Address   string
	Latitude  float64
	Longitude float64
	Nearest   []model.BranchDistance
}

// Options configures a Resolver.
type Options struct {
	Country    string
	TopN       int
	LocatorURL string
	Timeout    time.Duration
}

// Resolver geocodes a place and ranks branches by distance from it.
type Resolver struct {
	geo      geocode.Client
	branches []model.Branch
	opts     Options
	breaker  *resilience.Breaker
}

// NewResolver creates a Resolver. breaker may be nil.
func NewResolver(geo geocode.Client, branches []model.Branch, opts Options, breaker *resilience.Breaker) *Resolver {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Resolver{geo: geo, branches: branches, opts: opts, breaker: breaker}
}

// Nearest geocodes place within the configured country and returns the
// closest branches in ascending distance. A place the geocoder does not
// know yields geocode.ErrNotFound.
func (r *Resolver) Nearest(ctx context.Context, place string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	loc, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*geocode.Result, error) {
		res, err := r.geo.Geocode(ctx, place, r.opts.Country)
		if errors.Is(err, geocode.ErrNotFound) {
			// A miss is an answer, not a provider failure.
			return nil, nil
		}
		return res, err
	})
	switch {
	case err != nil:
		metrics.GeocodeRequests.WithLabelValues(metrics.ResultError).Inc()
		return nil, eris.Wrap(err, "locate: geocode")
	case loc == nil:
		metrics.GeocodeRequests.WithLabelValues(metrics.ResultEmpty).Inc()
		return nil, geocode.ErrNotFound
	}
	metrics.GeocodeRequests.WithLabelValues(metrics.ResultOK).Inc()

	return &Result{
		Address:   loc.Address,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Nearest:   NearestBranches(loc.Latitude, loc.Longitude, r.branches, r.opts.TopN),
	}, nil
}

// NearestBranches ranks branches by distance from (lat, lon) and keeps topN.
func NearestBranches(lat, lon float64, branches []model.Branch, topN int) []model.BranchDistance {
	out := make([]model.BranchDistance, 0, len(branches))
	for _, b := range branches {
		out = append(out, model.BranchDistance{
			Branch:     b,
			DistanceKM: Haversine(lat, lon, b.Latitude, b.Longitude),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Respond runs the full lookup for input and renders the user-facing reply:
// a clarification for vague input, a not-found notice, an error notice or
// the branch listing. It never returns an error.
func (r *Resolver) Respond(ctx context.Context, input string) string {
	if IsVague(input) {
		return MsgClarify
	}

	res, err := r.Nearest(ctx, input)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		return MsgNotFound
	case err != nil:
		zap.L().Warn("locate: lookup failed", zap.String("input", input), zap.Error(err))
		return fmt.Sprintf("❌ Location detection error: %s", rootMessage(err))
	}
	return r.render(res)
}

func (r *Resolver) render(res *Result) string {
	lines := []string{
		fmt.Sprintf("📌 Your location: **%s**", res.Address),
		"\n🏢 **Here are the nearest branches:**\n",
	}
	for _, bd := range res.Nearest {
		lines = append(lines, FormatBranch(bd), "")
	}
	if r.opts.LocatorURL != "" {
		lines = append(lines, fmt.Sprintf("🔗 For more: [Branch Locator](%s)", r.opts.LocatorURL))
	}
	return strings.Join(lines, "\n")
}

// FormatBranch renders one branch with its distance and any contact fields.
func FormatBranch(bd model.BranchDistance) string {
	b := bd.Branch
	lines := []string{fmt.Sprintf("📍 **%s** – approx. %.2f km away", b.Name, bd.DistanceKM)}
	if b.Address != "" {
		lines = append(lines, "🏠 Address: "+b.Address)
	}
	if b.Phone != "" {
		lines = append(lines, "📞 Phone: "+b.Phone)
	}
	if b.Email != "" {
		lines = append(lines, "📧 Email: "+b.Email)
	}
	return strings.Join(lines, "\n")
}

// rootMessage strips eris wrap prefixes so users see the underlying cause.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// NewGeocoder builds the geocoding client selected by cfg, wrapped in an
// in-process cache when a cache TTL is configured.
func NewGeocoder(cfg config.GeocodeConfig) (geocode.Client, error) {
	opts := []geocode.Option{
		geocode.WithUserAgent(cfg.UserAgent),
		geocode.WithCountryCode(cfg.CountryCode),
	}
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, geocode.WithRateLimit(cfg.RequestsPerSecond))
	}

	var client geocode.Client
	switch cfg.Provider {
	case "nominatim", "":
		client = geocode.NewNominatim(append(opts, geocode.WithBaseURL(cfg.NominatimURL))...)
	case "google":
		if cfg.GoogleKey == "" {
			return nil, eris.New("locate: google provider requires geocode.google_api_key")
		}
		client = geocode.NewGoogle(cfg.GoogleKey, opts...)
	default:
		return nil, eris.Errorf("locate: unknown geocode provider %q", cfg.Provider)
	}

	if cfg.CacheTTLMinutes > 0 {
		client = geocode.NewCached(client, time.Duration(cfg.CacheTTLMinutes)*time.Minute)
	}
	return client, nil
}

// OptionsFromConfig maps config sections onto Options.
func OptionsFromConfig(geo config.GeocodeConfig, branches config.BranchesConfig) Options {
	return Options{
		Country:    geo.Country,
		TopN:       branches.TopN,
		LocatorURL: branches.LocatorURL,
		Timeout:    time.Duration(geo.TimeoutSecs) * time.Second,
	}
}
