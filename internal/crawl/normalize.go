package crawl

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Normalize returns the canonical form of raw: query string and fragment
// removed, trailing slashes trimmed. Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", eris.Wrapf(err, "crawl: parse url %q", raw)
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}
