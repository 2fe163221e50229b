// Package llm turns an assembled prompt into generated answer text.
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/internal/config"
	"github.com/sells-group/telco-assist/internal/prompt"
	"github.com/sells-group/telco-assist/pkg/anthropic"
)

// Generator produces a completion for a single prompt. No streaming.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New selects a Generator from the llm.provider setting.
func New(cfg *config.Config) (Generator, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("llm: anthropic.key is required")
		}
		tpl := prompt.Template{Brand: cfg.Assistant.Brand, Site: cfg.Assistant.Site}
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens,
			WithSystem(tpl.System()),
			WithTemperature(cfg.Anthropic.Temperature),
		), nil
	case "ollama":
		return NewOllama(cfg.Ollama.BaseURL, cfg.Ollama.Model, &http.Client{
			Timeout: time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}
