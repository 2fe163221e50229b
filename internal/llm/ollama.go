package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/internal/resilience"
)

// Ollama generates answers with a local Ollama server.
type Ollama struct {
	baseURL string
	model   string
	http    *http.Client
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllama creates an Ollama generator. Empty values use the local defaults.
func NewOllama(baseURL, model string, hc *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Ollama{baseURL: strings.TrimRight(baseURL, "/"), model: model, http: hc}
}

// Generate calls /api/generate with streaming disabled.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: o.model, Prompt: prompt})
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal ollama request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "llm: create ollama request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "llm: ollama request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", resilience.StatusError("llm: ollama generate", resp.StatusCode)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", eris.Wrap(err, "llm: decode ollama response")
	}
	if out.Error != "" {
		return "", eris.Errorf("llm: ollama: %s", out.Error)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", eris.New("llm: ollama returned no text")
	}
	return text, nil
}
