// Package ocr pulls text out of images found on crawled pages.
package ocr

import (
	"context"
	"image"

	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/internal/config"
)

// Engine recognizes text in a decoded image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// NewEngine creates an Engine based on config. The "none" provider returns a
// nil Engine, which disables OCR for the crawl.
func NewEngine(cfg config.OCRConfig) (Engine, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseract(cfg.TesseractPath, cfg.Language), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
