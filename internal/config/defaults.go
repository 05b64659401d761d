package config

import "time"

// DefaultConfig returns a configuration with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".corpusd",
		Server: ServerConfig{
			Port: 8600,
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOpenAI,
			Model:    "text-embedding-3-small",
		},
		Indexer: IndexerConfig{
			BatchSize:    64,
			PollInterval: 15 * time.Second,
		},
	}
}

// ApplySourceDefaults fills per-source zero values.
func ApplySourceDefaults(s *SourceConfig) {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 4
	}
	if s.RatePerSecond <= 0 {
		s.RatePerSecond = 2
	}
	if s.Kind == "" {
		s.Kind = SourceFeed
	}
	if s.Format == "" {
		s.Format = FormatHTML
	}
}
