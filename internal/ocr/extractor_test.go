package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/telco-assist/internal/config"
)

type fakeEngine struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeEngine) Recognize(_ context.Context, img image.Image) (string, error) {
	f.calls.Add(1)
	if _, ok := img.(*image.RGBA); !ok {
		return "", errors.New("engine expects RGBA")
	}
	return f.text, f.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	data := pngBytes(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/banner.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/broken.jpg", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 2048))
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func opts() ExtractorOptions {
	return ExtractorOptions{
		SkipExtensions: []string{".svg", ".webp", ".gif"},
		MinBytes:       1,
		Timeout:        time.Second,
	}
}

func TestExtractText_Success(t *testing.T) {
	srv := imageServer(t)
	eng := &fakeEngine{text: "  Fibre 100Mbps \n"}
	ex := NewImageExtractor(eng, opts(), srv.Client())

	text, ok := ex.ExtractText(context.Background(), srv.URL+"/banner.png")
	assert.True(t, ok)
	assert.Equal(t, "Fibre 100Mbps", text)
	assert.Empty(t, ex.Failed())
}

func TestExtractText_EmptyTextIsStillAResult(t *testing.T) {
	srv := imageServer(t)
	ex := NewImageExtractor(&fakeEngine{text: "   "}, opts(), srv.Client())

	text, ok := ex.ExtractText(context.Background(), srv.URL+"/banner.png")
	assert.True(t, ok)
	assert.Equal(t, "", text)
}

func TestExtractText_SkipsExtensionsWithoutFetching(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	eng := &fakeEngine{text: "x"}
	ex := NewImageExtractor(eng, opts(), srv.Client())
	for _, p := range []string{"/logo.svg", "/anim.GIF", "/hero.webp?v=2"} {
		_, ok := ex.ExtractText(context.Background(), srv.URL+p)
		assert.False(t, ok, p)
	}
	assert.Zero(t, hits.Load())
	assert.Zero(t, eng.calls.Load())
	assert.Empty(t, ex.Failed())
}

func TestExtractText_BelowMinBytes(t *testing.T) {
	srv := imageServer(t)
	eng := &fakeEngine{text: "x"}
	o := opts()
	o.MinBytes = 50 * 1024
	ex := NewImageExtractor(eng, o, srv.Client())

	_, ok := ex.ExtractText(context.Background(), srv.URL+"/banner.png")
	assert.False(t, ok)
	assert.Zero(t, eng.calls.Load())
	assert.Empty(t, ex.Failed())
}

func TestExtractText_FailuresAreRecorded(t *testing.T) {
	srv := imageServer(t)
	o := opts()
	o.Timeout = 100 * time.Millisecond
	ex := NewImageExtractor(&fakeEngine{text: "x"}, o, srv.Client())

	for _, p := range []string{"/missing.png", "/broken.jpg", "/slow.png"} {
		text, ok := ex.ExtractText(context.Background(), srv.URL+p)
		assert.False(t, ok, p)
		assert.Empty(t, text, p)
	}
	assert.Equal(t, []string{
		srv.URL + "/broken.jpg",
		srv.URL + "/missing.png",
		srv.URL + "/slow.png",
	}, ex.Failed())
}

func TestExtractText_EngineError(t *testing.T) {
	srv := imageServer(t)
	ex := NewImageExtractor(&fakeEngine{err: errors.New("ocr crashed")}, opts(), srv.Client())

	_, ok := ex.ExtractText(context.Background(), srv.URL+"/banner.png")
	assert.False(t, ok)
	assert.Equal(t, []string{srv.URL + "/banner.png"}, ex.Failed())
}

func TestSkippable(t *testing.T) {
	ex := NewImageExtractor(nil, opts(), nil)
	assert.True(t, ex.Skippable("https://x/a.SVG"))
	assert.True(t, ex.Skippable("https://x/a.gif#frag"))
	assert.False(t, ex.Skippable("https://x/a.png"))
	assert.False(t, ex.Skippable("https://x/image"))
}

func TestOptionsFromConfig(t *testing.T) {
	o := OptionsFromConfig(config.OCRConfig{
		SkipExtensions:   []string{".svg"},
		MinBytes:         51200,
		ImageTimeoutSecs: 5,
	}, "bot/1.0")
	assert.Equal(t, []string{".svg"}, o.SkipExtensions)
	assert.Equal(t, 51200, o.MinBytes)
	assert.Equal(t, 5*time.Second, o.Timeout)
	assert.Equal(t, "bot/1.0", o.UserAgent)
}
