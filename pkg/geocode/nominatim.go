package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

const nominatimURL = "https://nominatim.openstreetmap.org"

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Nominatim geocodes with the OpenStreetMap search API. The public instance
// allows one request per second, which is the default limit.
type Nominatim struct {
	opts options
}

// NewNominatim creates a Nominatim client.
func NewNominatim(opts ...Option) *Nominatim {
	return &Nominatim{opts: buildOptions(nominatimURL, 1, opts)}
}

// Geocode implements Client.
func (n *Nominatim) Geocode(ctx context.Context, query, country string) (*Result, error) {
	if err := n.opts.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":      {withCountry(query, country)},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if n.opts.countryCode != "" {
		params.Set("countrycodes", n.opts.countryCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.opts.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	if n.opts.userAgent != "" {
		req.Header.Set("User-Agent", n.opts.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.opts.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		return nil, ErrNotFound
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim latitude %q", p.Lat)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim longitude %q", p.Lon)
	}

	return &Result{
		Latitude:  lat,
		Longitude: lon,
		Address:   p.DisplayName,
		Source:    "nominatim",
	}, nil
}
