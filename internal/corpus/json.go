package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/internal/model"
)

// JSONStore keeps the corpus in a single indented JSON document keyed by
// canonical URL. Non-ASCII text is written as-is.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSONStore at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file.
func (s *JSONStore) Path() string { return s.path }

// Save writes c to a temp file next to the target and renames it into place.
func (s *JSONStore) Save(_ context.Context, c model.Corpus) error {
	out := make(model.Corpus, len(c))
	for u, rec := range c {
		rec.OCRImages = rec.ImageList()
		out[u] = rec
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return eris.Wrap(err, "corpus: encode json")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "corpus: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "corpus: create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "corpus: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "corpus: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return eris.Wrapf(err, "corpus: rename to %s", s.path)
	}
	return nil
}

// Load reads the corpus file. A missing file is an error.
func (s *JSONStore) Load(_ context.Context) (model.Corpus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: read %s", s.path)
	}
	c := model.Corpus{}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(err, "corpus: decode %s", s.path)
	}
	return c, nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }
