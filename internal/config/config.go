package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Corpus    CorpusConfig    `yaml:"corpus" mapstructure:"corpus"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Branches  BranchesConfig  `yaml:"branches" mapstructure:"branches"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Assistant AssistantConfig `yaml:"assistant" mapstructure:"assistant"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the chat HTTP server.
type ServerConfig struct {
	Port            int `yaml:"port" mapstructure:"port"`
	ShutdownTimeout int `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// CrawlConfig configures the site crawler.
type CrawlConfig struct {
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	SeedURL            string  `yaml:"seed_url" mapstructure:"seed_url"`
	MaxDepth           int     `yaml:"max_depth" mapstructure:"max_depth"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	RequestsPerSecond  float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	UserAgent          string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyKB          int     `yaml:"max_body_kb" mapstructure:"max_body_kb"`
}

// OCRConfig configures image text extraction.
type OCRConfig struct {
	Provider         string   `yaml:"provider" mapstructure:"provider"`
	TesseractPath    string   `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	Language         string   `yaml:"language" mapstructure:"language"`
	MistralKey       string   `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel     string   `yaml:"mistral_model" mapstructure:"mistral_model"`
	MinBytes         int      `yaml:"min_bytes" mapstructure:"min_bytes"`
	SkipExtensions   []string `yaml:"skip_extensions" mapstructure:"skip_extensions"`
	ImageTimeoutSecs int      `yaml:"image_timeout_secs" mapstructure:"image_timeout_secs"`
	Concurrency      int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// CorpusConfig configures where the crawled corpus is persisted.
type CorpusConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// RetrievalConfig configures page ranking.
type RetrievalConfig struct {
	TopN      int    `yaml:"top_n" mapstructure:"top_n"`
	MatchMode string `yaml:"match_mode" mapstructure:"match_mode"`
}

// BranchesConfig points at the static branch list.
type BranchesConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	TopN       int    `yaml:"top_n" mapstructure:"top_n"`
	LocatorURL string `yaml:"locator_url" mapstructure:"locator_url"`
}

// GeocodeConfig configures place-name resolution.
type GeocodeConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Country           string  `yaml:"country" mapstructure:"country"`
	CountryCode       string  `yaml:"country_code" mapstructure:"country_code"`
	GoogleKey         string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	NominatimURL      string  `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLMinutes   int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
}

// LLMConfig selects the answer-generation backend.
type LLMConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// OllamaConfig holds settings for a local Ollama server.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SessionConfig configures per-user chat state.
type SessionConfig struct {
	Driver               string `yaml:"driver" mapstructure:"driver"`
	TTLMinutes           int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
}

// RedisConfig holds connection settings for the Redis session driver.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// RetryConfig configures retries of outbound HTTP calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures breakers around the geocoder and LLM.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AssistantConfig holds the branding used in prompts and replies.
type AssistantConfig struct {
	Brand string `yaml:"brand" mapstructure:"brand"`
	Site  string `yaml:"site" mapstructure:"site"`
}

// CrawlTimeout returns the crawl wall-clock budget.
func (c CrawlConfig) CrawlTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RequestTimeout returns the per-page fetch timeout.
func (c CrawlConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// Timeout returns the per-answer generation timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SessionTTL returns how long an idle session is kept.
func (c SessionConfig) SessionTTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TELCO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("crawl.base_url", "https://www.slt.lk/home")
	v.SetDefault("crawl.max_depth", 5)
	v.SetDefault("crawl.timeout_secs", 300)
	v.SetDefault("crawl.request_timeout_secs", 10)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.requests_per_second", 5.0)
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (compatible; TelcoAssistBot/1.0)")
	v.SetDefault("crawl.max_body_kb", 2048)
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.min_bytes", 50*1024)
	v.SetDefault("ocr.skip_extensions", []string{".svg", ".webp", ".gif"})
	v.SetDefault("ocr.image_timeout_secs", 5)
	v.SetDefault("ocr.concurrency", 2)
	v.SetDefault("corpus.driver", "json")
	v.SetDefault("corpus.path", "data/index.json")
	v.SetDefault("retrieval.top_n", 3)
	v.SetDefault("retrieval.match_mode", "substring")
	v.SetDefault("branches.path", "data/branches.json")
	v.SetDefault("branches.top_n", 3)
	v.SetDefault("branches.locator_url", "https://www.slt.lk/en/contact-us/branch-locator/our-locations/our-network")
	v.SetDefault("geocode.provider", "nominatim")
	v.SetDefault("geocode.country", "Sri Lanka")
	v.SetDefault("geocode.country_code", "lk")
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "telco-assist-location-finder")
	v.SetDefault("geocode.requests_per_second", 1.0)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.cache_ttl_minutes", 60)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.timeout_secs", 60)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2")
	v.SetDefault("session.driver", "memory")
	v.SetDefault("session.ttl_minutes", 30)
	v.SetDefault("session.sweep_interval_secs", 60)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("assistant.brand", "Sri Lanka Telecom (SLT)")
	v.SetDefault("assistant.site", "www.slt.lk")

	// Secrets have empty defaults so env-only values survive Unmarshal.
	for _, key := range []string{"anthropic.key", "ocr.mistral_api_key", "geocode.google_api_key", "redis.password", "crawl.seed_url", "corpus.dsn"} {
		v.SetDefault(key, "")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by the given command mode
// ("crawl" or "serve"). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Corpus.Driver {
	case "json", "sqlite":
		if c.Corpus.Path == "" {
			add("corpus.path is required")
		}
	case "postgres":
		if c.Corpus.DSN == "" {
			add("corpus.dsn is required for the postgres driver")
		}
	default:
		add("corpus.driver must be json, sqlite or postgres, got %q", c.Corpus.Driver)
	}

	switch mode {
	case "crawl":
		if c.Crawl.BaseURL == "" {
			add("crawl.base_url is required")
		}
		if c.Crawl.MaxDepth < 0 {
			add("crawl.max_depth must be >= 0")
		}
		if c.Crawl.TimeoutSecs <= 0 {
			add("crawl.timeout_secs must be > 0")
		}
		if c.Crawl.Concurrency < 1 || c.Crawl.Concurrency > 64 {
			add("crawl.concurrency must be between 1 and 64")
		}
		if !oneOf(c.OCR.Provider, "tesseract", "mistral", "none") {
			add("ocr.provider must be tesseract, mistral or none, got %q", c.OCR.Provider)
		}
		if c.OCR.Provider == "mistral" && c.OCR.MistralKey == "" {
			add("ocr.mistral_api_key is required for the mistral provider")
		}
	case "serve":
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		if !oneOf(c.Retrieval.MatchMode, "substring", "word") {
			add("retrieval.match_mode must be substring or word, got %q", c.Retrieval.MatchMode)
		}
		if !oneOf(c.Session.Driver, "memory", "redis") {
			add("session.driver must be memory or redis, got %q", c.Session.Driver)
		}
		if !oneOf(c.Geocode.Provider, "nominatim", "google") {
			add("geocode.provider must be nominatim or google, got %q", c.Geocode.Provider)
		}
		if c.Geocode.Provider == "google" && c.Geocode.GoogleKey == "" {
			add("geocode.google_api_key is required for the google provider")
		}
		switch c.LLM.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				add("anthropic.key is required")
			}
		case "ollama":
		default:
			add("llm.provider must be anthropic or ollama, got %q", c.LLM.Provider)
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
