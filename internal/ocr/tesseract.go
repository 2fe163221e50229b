package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os/exec"

	"github.com/rotisserie/eris"
)

// Tesseract recognizes text with the tesseract CLI. The image is piped in
// as PNG and the text read from stdout.
type Tesseract struct {
	binPath  string
	language string
}

// NewTesseract creates a Tesseract engine. Empty binPath means "tesseract"
// on PATH; empty language means "eng".
func NewTesseract(binPath, language string) *Tesseract {
	if binPath == "" {
		binPath = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{binPath: binPath, language: language}
}

// Recognize runs `tesseract stdin stdout -l <lang>` on img.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return "", eris.Wrap(err, "ocr: encode png")
	}

	cmd := exec.CommandContext(ctx, t.binPath, "stdin", "stdout", "-l", t.language)
	cmd.Stdin = &in

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: tesseract failed: %s", stderr.String())
	}

	return stdout.String(), nil
}
