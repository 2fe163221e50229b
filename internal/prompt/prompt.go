// Package prompt turns ranked pages and a user question into the prompt
// sent to the answer generator, and post-processes generated answers.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/telco-assist/internal/model"
)

const (
	maxTextRunes   = 1000
	maxOCRRunes    = 500
	maxOCRImages   = 3
	blockSeparator = "\n\n---\n\n"
)

// BuildContext renders one block per ranked page, in order.
func BuildContext(pages []model.RankedPage) string {
	blocks := make([]string, 0, len(pages))
	for _, p := range pages {
		blocks = append(blocks, fmt.Sprintf("🔗 Page: %s\n📄 Text: %s\n🖼️ OCR: %s",
			p.URL,
			truncate(p.Record.Text, maxTextRunes),
			truncate(ocrSummary(p.Record.OCRImages), maxOCRRunes),
		))
	}
	return strings.Join(blocks, blockSeparator)
}

// ocrSummary lists the first few images as "- <file>: <text>".
func ocrSummary(images []model.OCRImage) string {
	if len(images) > maxOCRImages {
		images = images[:maxOCRImages]
	}
	lines := make([]string, 0, len(images))
	for _, img := range images {
		lines = append(lines, fmt.Sprintf("- %s: %s", lastSegment(img.Src), img.Text))
	}
	return strings.Join(lines, "\n")
}

func lastSegment(src string) string {
	if i := strings.LastIndex(src, "/"); i >= 0 {
		return src[i+1:]
	}
	return src
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Template carries the branding baked into the prompt.
type Template struct {
	Brand string
	Site  string
}

// DefaultTemplate is the Sri Lanka Telecom branding.
var DefaultTemplate = Template{Brand: "Sri Lanka Telecom (SLT)", Site: "www.slt.lk"}

// System is the persona line that opens every prompt.
func (t Template) System() string {
	t = t.withDefaults()
	return fmt.Sprintf("You are an expert assistant for %s, helping users with their questions based on official content from %s.", t.Brand, t.Site)
}

func (t Template) withDefaults() Template {
	if t.Brand == "" {
		t.Brand = DefaultTemplate.Brand
	}
	if t.Site == "" {
		t.Site = DefaultTemplate.Site
	}
	return t
}

// Build wraps the question and context in the answering instructions. The
// generator is told to answer only from the context, cite page URLs and
// say so kindly when the context has no answer.
func (t Template) Build(query, context string) string {
	t = t.withDefaults()

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\n\n", t.System())
	fmt.Fprintf(&sb, "🧑 User Question:\n%s\n\n", query)
	fmt.Fprintf(&sb, "🗂️ Extracted Context:\n%s\n\n", context)
	sb.WriteString("🎯 Instructions:\n")
	sb.WriteString("- Provide a clear, helpful answer based only on this context.\n")
	sb.WriteString("- Use bullet points, emojis, or short paragraphs if useful.\n")
	sb.WriteString("- Always include the source webpage URL (from the context) when possible.\n")
	fmt.Fprintf(&sb, "- Format links like this: [Visit Page](https://%s/...)\n", t.Site)
	sb.WriteString("- If no answer is possible, say so kindly.\n\n")
	sb.WriteString("Answer:\n")
	return sb.String()
}

// BuildPrompt builds a prompt with DefaultTemplate.
func BuildPrompt(query, context string) string {
	return DefaultTemplate.Build(query, context)
}

var urlRe = regexp.MustCompile(`(https?://[^\s)]+)`)

// Linkify turns bare http(s) URLs into anchor tags that open in a new tab.
func Linkify(text string) string {
	return urlRe.ReplaceAllString(text,
		`<a href="$1" target="_blank" rel="noopener noreferrer" class="text-blue-600 underline">$1</a>`)
}
