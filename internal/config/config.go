// Package config loads the service configuration from the process
// environment.
package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/semidex/semidex/internal/ragerr"
)

// Provider identifies the selected embedding backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderCompat Provider = "openai-compatible"
)

// Config captures all runtime configuration for the service.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string. Required.
	DatabaseURL string `env:"DATABASE_URL"`

	// Provider credentials. Exactly one provider must be configured:
	// OpenAIAPIKey alone selects the hosted provider, OllamaBaseURL alone
	// selects the local runtime, and CompatBaseURL (+key) selects an
	// OpenAI-compatible endpoint.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OllamaBaseURL string `env:"OLLAMA_BASE_URL"`
	CompatBaseURL string `env:"OPENAI_COMPAT_BASE_URL"`
	CompatAPIKey  string `env:"OPENAI_COMPAT_API_KEY"`

	// EmbeddingModel overrides the provider's default model identifier.
	EmbeddingModel string `env:"EMBEDDING_MODEL"`

	// EmbeddingDimension is the declared vector dimension. Zero means
	// "use the provider default".
	EmbeddingDimension int `env:"EMBEDDING_DIMENSION"`

	// Chunker parameters.
	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"200"`

	// ExcludeCodeLanguages lists fenced-block languages stripped from
	// markdown before chunking.
	ExcludeCodeLanguages []string `env:"EXCLUDE_CODE_LANGUAGES" envSeparator:","`

	// Search tuning.
	MinSimilarity     float64 `env:"MIN_SIMILARITY" envDefault:"0.3"`
	MaxResults        int     `env:"MAX_RESULTS" envDefault:"10"`
	MaxChunksPerQuery int     `env:"MAX_CHUNKS_PER_QUERY" envDefault:"50"`

	// Scanner glob lists.
	IncludePatterns []string `env:"INCLUDE_PATTERNS" envSeparator:"," envDefault:"**/*.md"`
	ExcludePatterns []string `env:"EXCLUDE_PATTERNS" envSeparator:","`

	// ReportOutputDir, when set, is added to ExcludePatterns so generated
	// reports are never indexed.
	ReportOutputDir string `env:"REPORT_OUTPUT_DIR"`

	// MaxSessionResults bounds the session cache of prior query results.
	MaxSessionResults int `env:"MAX_SESSION_RESULTS" envDefault:"100"`

	// ConsoleAddr is the bind address for the operator HTTP console.
	ConsoleAddr string `env:"CONSOLE_ADDR" envDefault:"127.0.0.1:8731"`

	// LogLevel is the minimum slog level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment. A .env file in the current
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, ragerr.Config("failed to parse environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.applyDerived()
	return cfg, nil
}

// SelectedProvider returns which embedding backend the configuration names.
func (c *Config) SelectedProvider() Provider {
	switch {
	case c.CompatBaseURL != "":
		return ProviderCompat
	case c.OllamaBaseURL != "":
		return ProviderOllama
	default:
		return ProviderOpenAI
	}
}

// Validate checks the configuration for consistency. Violations surface as
// config errors, fatal until corrected.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ragerr.Config("DATABASE_URL is required", nil)
	}

	providers := 0
	if c.OpenAIAPIKey != "" {
		providers++
	}
	if c.OllamaBaseURL != "" {
		providers++
	}
	if c.CompatBaseURL != "" {
		providers++
	}
	if providers == 0 {
		return ragerr.Config("no embedding provider configured: set OPENAI_API_KEY, OLLAMA_BASE_URL, or OPENAI_COMPAT_BASE_URL", nil)
	}
	if providers > 1 {
		return ragerr.Config("multiple embedding providers configured: set exactly one of OPENAI_API_KEY, OLLAMA_BASE_URL, OPENAI_COMPAT_BASE_URL", nil)
	}

	if c.ChunkSize <= 0 {
		return ragerr.Config("CHUNK_SIZE must be positive", nil)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return ragerr.Config("CHUNK_OVERLAP must be non-negative and smaller than CHUNK_SIZE", nil)
	}
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		return ragerr.Config("MIN_SIMILARITY must be in [-1, 1]", nil)
	}
	if c.MaxResults <= 0 {
		return ragerr.Config("MAX_RESULTS must be positive", nil)
	}
	if c.MaxSessionResults <= 0 {
		return ragerr.Config("MAX_SESSION_RESULTS must be positive", nil)
	}
	if len(c.IncludePatterns) == 0 {
		return ragerr.Config("INCLUDE_PATTERNS must not be empty", nil)
	}

	return nil
}

// applyDerived normalizes URLs and folds the report directory into the
// exclude patterns.
func (c *Config) applyDerived() {
	c.OllamaBaseURL = strings.TrimRight(c.OllamaBaseURL, "/")
	c.CompatBaseURL = strings.TrimRight(c.CompatBaseURL, "/")

	if c.ReportOutputDir != "" {
		dir := strings.Trim(strings.ReplaceAll(c.ReportOutputDir, "\\", "/"), "/")
		if dir != "" {
			c.ExcludePatterns = append(c.ExcludePatterns, dir+"/**")
		}
	}
}
