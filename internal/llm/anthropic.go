package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024
)

// Anthropic generates answers with the Messages API.
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	system      string
	temperature *float64
}

// AnthropicOption configures an Anthropic generator.
type AnthropicOption func(*Anthropic)

// WithSystem sends text as a cached system block on every request.
func WithSystem(text string) AnthropicOption {
	return func(a *Anthropic) { a.system = text }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) AnthropicOption {
	return func(a *Anthropic) { a.temperature = &t }
}

// NewAnthropic wraps client. Empty model and non-positive maxTokens fall back
// to defaults.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64, opts ...AnthropicOption) *Anthropic {
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	a := &Anthropic{client: client, model: model, maxTokens: maxTokens}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Generate sends prompt as a single user turn.
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	req := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: a.temperature,
	}
	if a.system != "" {
		req.System = []anthropic.SystemBlock{{
			Text:         a.system,
			CacheControl: &anthropic.CacheControl{TTL: "5m"},
		}}
	}

	resp, err := a.client.CreateMessage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic generate")
	}
	resp.Usage.LogCost(a.model, "answer")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("llm: anthropic returned no text")
	}
	return text, nil
}
