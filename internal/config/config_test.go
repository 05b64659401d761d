package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
data_dir: /tmp/corpusd
server:
  port: 9000
embedding:
  provider: openai
  model: text-embedding-3-small
collections:
  - name: news
    dimensions: 1536
    audience: public
  - name: advisories
    dimensions: 1536
    audience: internal
sources:
  - name: hn
    kind: feed
    url: https://hnrss.org/frontpage
    collection: news
    cadence: 15m
  - name: nvd
    kind: json
    url: https://example.org/api/advisories
    collection: advisories
    conditional: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpusd.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Name != "hn" || cfg.Sources[0].Kind != SourceFeed {
		t.Errorf("unexpected first source: %+v", cfg.Sources[0])
	}
	// Defaults should be filled for unset per-source values.
	if cfg.Sources[0].MaxAttempts != 3 {
		t.Errorf("max_attempts default = %d, want 3", cfg.Sources[0].MaxAttempts)
	}
	if !cfg.Sources[1].Conditional {
		t.Error("expected nvd source to support conditional fetch")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8600 {
		t.Errorf("default port = %d, want 8600", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != ProviderOpenAI {
		t.Errorf("default provider = %q", cfg.Embedding.Provider)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CORPUSD_DATA_DIR", "/var/lib/corpusd")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/corpusd" {
		t.Errorf("data_dir = %q, want env override", cfg.DataDir)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"missing model", func(c *Config) { c.Embedding.Model = "" }},
		{"duplicate source", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }},
		{"unknown collection", func(c *Config) { c.Sources[0].Collection = "nope" }},
		{"bad dimensions", func(c *Config) { c.Collections[0].Dimensions = 0 }},
		{"bad kind", func(c *Config) { c.Sources[0].Kind = "ftp" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleYAML))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	out := filepath.Join(t.TempDir(), "saved.yml")
	if err := cfg.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := Load(out)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if len(again.Sources) != len(cfg.Sources) {
		t.Errorf("source count changed across save/load: %d != %d", len(again.Sources), len(cfg.Sources))
	}
}
