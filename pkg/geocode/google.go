package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// Google geocodes with the Google Geocoding API.
type Google struct {
	key  string
	opts options
}

// NewGoogle creates a Google client. The default limit is 10 req/s.
func NewGoogle(key string, opts ...Option) *Google {
	return &Google{key: key, opts: buildOptions(googleGeocodeURL, 10, opts)}
}

// Geocode implements Client.
func (g *Google) Geocode(ctx context.Context, query, country string) (*Result, error) {
	if g.key == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	if err := g.opts.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"address": {withCountry(query, country)},
		"key":     {g.key},
	}
	if g.opts.countryCode != "" {
		params.Set("components", "country:"+g.opts.countryCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.opts.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.opts.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNotFound
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", googleResp.Status, googleResp.ErrorMessage)
	}
	if len(googleResp.Results) == 0 {
		return nil, ErrNotFound
	}

	result := googleResp.Results[0]
	return &Result{
		Latitude:  result.Geometry.Location.Lat,
		Longitude: result.Geometry.Location.Lng,
		Address:   result.FormattedAddress,
		Source:    "google",
	}, nil
}
