package retrieve

import (
	"sort"

	"github.com/sells-group/telco-assist/internal/model"
)

// DefaultTopN is used when a caller passes topN <= 0.
const DefaultTopN = 3

// FindRelevantPages scores every page in c, drops zero scores and returns
// at most topN pages ordered by score descending, then URL ascending.
func FindRelevantPages(query string, c model.Corpus, topN int, mode MatchMode) []model.RankedPage {
	if topN <= 0 {
		topN = DefaultTopN
	}

	ranked := make([]model.RankedPage, 0)
	for u, rec := range c {
		if s := Score(query, rec, mode); s > 0 {
			ranked = append(ranked, model.RankedPage{Score: s, URL: u, Record: rec})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].URL < ranked[j].URL
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// Retriever ranks pages of a fixed corpus. The corpus is never mutated, so
// a Retriever is safe for concurrent use.
type Retriever struct {
	corpus model.Corpus
	topN   int
	mode   MatchMode
}

// NewRetriever creates a Retriever over c.
func NewRetriever(c model.Corpus, topN int, mode MatchMode) *Retriever {
	if c == nil {
		c = model.Corpus{}
	}
	if mode == "" {
		mode = MatchSubstring
	}
	return &Retriever{corpus: c, topN: topN, mode: mode}
}

// Find returns the most relevant pages for query.
func (r *Retriever) Find(query string) []model.RankedPage {
	return FindRelevantPages(query, r.corpus, r.topN, r.mode)
}

// Len is the number of pages in the corpus.
func (r *Retriever) Len() int { return len(r.corpus) }
