package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CORPUSD_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: CORPUSD_SERVER.PORT -> server.port, etc.
	if err := k.Load(env.Provider("CORPUSD_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CORPUSD_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	for i := range cfg.Sources {
		ApplySourceDefaults(&cfg.Sources[i])
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized embedding provider values.
var validProviders = map[EmbeddingProvider]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// validSourceKinds is the set of recognized source adapter kinds.
var validSourceKinds = map[SourceKind]bool{
	SourceFeed: true,
	SourceJSON: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding provider %q: must be one of openai, ollama", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	if c.Indexer.BatchSize < 0 {
		return fmt.Errorf("indexer batch_size must be non-negative")
	}

	collections := make(map[string]bool, len(c.Collections))
	for _, col := range c.Collections {
		if col.Name == "" {
			return fmt.Errorf("collection name is required")
		}
		if collections[col.Name] {
			return fmt.Errorf("duplicate collection %q", col.Name)
		}
		if col.Dimensions <= 0 {
			return fmt.Errorf("collection %q: dimensions must be positive", col.Name)
		}
		collections[col.Name] = true
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("source name is required")
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source %q", src.Name)
		}
		seen[src.Name] = true
		if !validSourceKinds[src.Kind] {
			return fmt.Errorf("source %q: invalid kind %q", src.Name, src.Kind)
		}
		if src.Format != "" && src.Format != FormatHTML && src.Format != FormatMarkdown {
			return fmt.Errorf("source %q: invalid format %q: must be html or markdown", src.Name, src.Format)
		}
		if src.URL == "" {
			return fmt.Errorf("source %q: url is required", src.Name)
		}
		if src.Collection == "" {
			return fmt.Errorf("source %q: collection is required", src.Name)
		}
		if !collections[src.Collection] {
			return fmt.Errorf("source %q: unknown collection %q", src.Name, src.Collection)
		}
	}

	return nil
}

// CollectionByName looks up a collection declaration.
func (c *Config) CollectionByName(name string) (CollectionConfig, bool) {
	for _, col := range c.Collections {
		if col.Name == name {
			return col, true
		}
	}
	return CollectionConfig{}, false
}

// SourceByName looks up a source declaration.
func (c *Config) SourceByName(name string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return SourceConfig{}, false
}
