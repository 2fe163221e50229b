package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/telco-assist/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"crawl", "serve", "ask", "branches"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "telco-assist", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCrawlCommand_Flags(t *testing.T) {
	for _, name := range []string{"seed", "depth", "timeout", "out", "concurrency"} {
		assert.NotNil(t, crawlCmd.Flags().Lookup(name), "crawl should have --%s", name)
	}
	assert.Equal(t, "-1", crawlCmd.Flags().Lookup("depth").DefValue)
}

func TestBranchesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range branchesCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["near"])
}

func TestApplyCrawlFlags(t *testing.T) {
	orig := cfg
	t.Cleanup(func() {
		cfg = orig
		crawlSeed, crawlDepth, crawlOut, crawlConcurrency = "", -1, "", 0
		crawlTimeout = 0
	})

	cfg = &config.Config{}
	cfg.Crawl.MaxDepth = 5
	cfg.Corpus.Path = "data/index.json"

	crawlSeed = "https://www.slt.lk/en"
	crawlDepth = 0
	crawlOut = "out/corpus.json"
	crawlConcurrency = 8
	crawlTimeout = 90 * time.Second
	require.NoError(t, applyCrawlFlags())

	assert.Equal(t, "https://www.slt.lk/en", cfg.Crawl.SeedURL)
	assert.Equal(t, 0, cfg.Crawl.MaxDepth)
	assert.Equal(t, "out/corpus.json", cfg.Corpus.Path)
	assert.Equal(t, 8, cfg.Crawl.Concurrency)
	assert.Equal(t, 90, cfg.Crawl.TimeoutSecs)
}

func TestApplyCrawlFlags_Timeout(t *testing.T) {
	orig := cfg
	t.Cleanup(func() {
		cfg = orig
		crawlTimeout = 0
	})

	cfg = &config.Config{}
	cfg.Crawl.TimeoutSecs = 300

	crawlTimeout = 500 * time.Millisecond
	err := applyCrawlFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--timeout must be at least 1s")
	assert.Equal(t, 300, cfg.Crawl.TimeoutSecs)

	crawlTimeout = 1500 * time.Millisecond
	require.NoError(t, applyCrawlFlags())
	assert.Equal(t, 2, cfg.Crawl.TimeoutSecs)
	assert.Equal(t, 2*time.Second, cfg.Crawl.CrawlTimeout())
}

func TestInitImageReader_None(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = &config.Config{}
	cfg.OCR.Provider = "none"
	r, err := initImageReader()
	require.NoError(t, err)
	assert.Nil(t, r)

	cfg.OCR.Provider = "bogus"
	_, err = initImageReader()
	assert.Error(t, err)
}

func TestBranchesList_MissingFileIsEmpty(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = &config.Config{}
	cfg.Branches.Path = t.TempDir() + "/missing.json"

	var buf bytes.Buffer
	branchesListCmd.SetOut(&buf)
	require.NoError(t, branchesListCmd.RunE(branchesListCmd, nil))
	assert.Empty(t, buf.String())
}
