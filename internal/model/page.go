package model

import (
	"sort"
	"strings"
)

// OCRImage is an image found on a crawled page together with the text OCR
// pulled out of it. Text may be empty when the engine found nothing.
type OCRImage struct {
	Src  string `json:"src"`
	Text string `json:"text"`
}

// PageRecord is the stored content of one crawled page.
type PageRecord struct {
	Title     string     `json:"title"`
	Text      string     `json:"text"`
	OCRImages []OCRImage `json:"ocr_images"`
}

// ImageList returns OCRImages, or an empty list when there are none, so the
// persisted shape is always a JSON array.
func (p PageRecord) ImageList() []OCRImage {
	if p.OCRImages == nil {
		return []OCRImage{}
	}
	return p.OCRImages
}

// OCRText returns the OCR snippets joined with a single space.
func (p PageRecord) OCRText() string {
	if len(p.OCRImages) == 0 {
		return ""
	}
	parts := make([]string, len(p.OCRImages))
	for i, img := range p.OCRImages {
		parts[i] = img.Text
	}
	return strings.Join(parts, " ")
}

// Corpus maps a canonical URL to its page record.
type Corpus map[string]PageRecord

// URLs returns the corpus keys in ascending order.
func (c Corpus) URLs() []string {
	urls := make([]string, 0, len(c))
	for u := range c {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// RankedPage is a corpus entry scored against a query.
type RankedPage struct {
	Score  int        `json:"score"`
	URL    string     `json:"url"`
	Record PageRecord `json:"record"`
}
