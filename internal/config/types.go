package config

import "time"

// EmbeddingProvider identifies which embedding backend to use.
type EmbeddingProvider string

const (
	ProviderOpenAI EmbeddingProvider = "openai"
	ProviderOllama EmbeddingProvider = "ollama"
)

// SourceKind selects the fetch adapter for a source.
type SourceKind string

const (
	SourceFeed SourceKind = "feed" // RSS/Atom feed
	SourceJSON SourceKind = "json" // JSON listing endpoint
)

// ContentFormat declares how a source's item bodies are marked up,
// which decides the normalization applied before fingerprinting.
type ContentFormat string

const (
	FormatHTML     ContentFormat = "html"
	FormatMarkdown ContentFormat = "markdown"
)

// Config is the root corpusd configuration.
type Config struct {
	DataDir     string             `koanf:"data_dir" yaml:"data_dir"`
	Server      ServerConfig       `koanf:"server" yaml:"server"`
	Embedding   EmbeddingConfig    `koanf:"embedding" yaml:"embedding"`
	Indexer     IndexerConfig      `koanf:"indexer" yaml:"indexer"`
	Sources     []SourceConfig     `koanf:"sources" yaml:"sources"`
	Collections []CollectionConfig `koanf:"collections" yaml:"collections"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int  `koanf:"port" yaml:"port"`
	AllowAll bool `koanf:"allow_all_origins" yaml:"allow_all_origins"` // allow all CORS origins (dev mode)
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider EmbeddingProvider `koanf:"provider" yaml:"provider"`
	Model    string            `koanf:"model" yaml:"model"`
	// BaseURL overrides the provider endpoint, e.g. a local
	// OpenAI-compatible embedding service.
	BaseURL string `koanf:"base_url" yaml:"base_url"`
}

// IndexerConfig controls the store-to-index reconciliation loop.
type IndexerConfig struct {
	BatchSize    int           `koanf:"batch_size" yaml:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
}

// SourceConfig describes one external origin. Immutable at runtime.
type SourceConfig struct {
	Name       string     `koanf:"name" yaml:"name"`
	Kind       SourceKind `koanf:"kind" yaml:"kind"`
	URL        string     `koanf:"url" yaml:"url"`
	Collection string     `koanf:"collection" yaml:"collection"`

	// Cadence is the base interval between scheduled reconciliation
	// cycles. Zero means on-demand only.
	Cadence time.Duration `koanf:"cadence" yaml:"cadence"`

	// Format names the markup of item bodies; defaults to html.
	// Markdown bodies are rendered before fingerprinting so emphasis
	// and link syntax never shows up as a content change.
	Format ContentFormat `koanf:"format" yaml:"format"`

	// Conditional advertises that the origin honours
	// If-Modified-Since, letting the reconciler skip content fetches.
	Conditional bool `koanf:"conditional" yaml:"conditional"`

	// MaxAttempts bounds per-item fetch retries within a cycle.
	MaxAttempts int `koanf:"max_attempts" yaml:"max_attempts"`

	// Concurrency bounds parallel item processing within a cycle.
	Concurrency int `koanf:"concurrency" yaml:"concurrency"`

	// RatePerSecond throttles outbound fetches to the origin.
	RatePerSecond float64 `koanf:"rate_per_second" yaml:"rate_per_second"`

	// Include/Exclude are doublestar patterns matched against item
	// identities; empty Include means everything.
	Include []string `koanf:"include" yaml:"include"`
	Exclude []string `koanf:"exclude" yaml:"exclude"`
}

// CollectionConfig declares an independently indexable partition.
type CollectionConfig struct {
	Name       string `koanf:"name" yaml:"name"`
	Dimensions int    `koanf:"dimensions" yaml:"dimensions"`
	Audience   string `koanf:"audience" yaml:"audience"`
}
