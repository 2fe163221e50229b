package crawl

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// content is what the crawler keeps from one HTML document.
type content struct {
	Title  string
	Text   string
	Images []string
	Links  []string
}

// textSelector lists the elements whose text makes up a page record.
const textSelector = "h1, h2, p, li"

// extract parses body and pulls the title, visible text, image sources and
// anchor targets. Relative references are resolved against base.
func extract(body []byte, base *url.URL) (*content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse html")
	}

	c := &content{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	var parts []string
	doc.Find(textSelector).Each(func(_ int, s *goquery.Selection) {
		if t := collapseSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	c.Text = strings.Join(parts, " ")

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if abs, ok := resolve(base, s.AttrOr("src", "")); ok {
			c.Images = append(c.Images, abs)
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if abs, ok := resolve(base, s.AttrOr("href", "")); ok {
			c.Links = append(c.Links, abs)
		}
	})

	return c, nil
}

func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
