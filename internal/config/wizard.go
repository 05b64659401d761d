package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to the given path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to corpusd! Let's configure your corpus.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Data directory.
	dataDirPrompt := promptui.Prompt{
		Label:   "Data directory (database and index files)",
		Default: cfg.DataDir,
	}
	dataDir, err := dataDirPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	cfg.DataDir = dataDir

	// 2. Embedding provider.
	providerPrompt := promptui.Select{
		Label: "Select embedding provider",
		Items: []string{"openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Embedding.Provider = EmbeddingProvider(providerStr)

	modelDefault := "text-embedding-3-small"
	dimsDefault := 1536
	if cfg.Embedding.Provider == ProviderOllama {
		modelDefault = "nomic-embed-text"
		dimsDefault = 768
	}
	modelPrompt := promptui.Prompt{
		Label:   "Embedding model",
		Default: modelDefault,
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("embedding model: %w", err)
	}
	cfg.Embedding.Model = model

	// 3. First collection.
	collectionPrompt := promptui.Prompt{
		Label:   "Name of the first collection",
		Default: "main",
	}
	collectionName, err := collectionPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("collection name: %w", err)
	}

	dimsPrompt := promptui.Prompt{
		Label:    "Embedding dimensions",
		Default:  strconv.Itoa(dimsDefault),
		Validate: validatePositiveInt,
	}
	dimsStr, err := dimsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("dimensions: %w", err)
	}
	dims, _ := strconv.Atoi(dimsStr)

	audiencePrompt := promptui.Prompt{
		Label:   "Audience tag for this collection (blank for unrestricted)",
		Default: "",
	}
	audience, err := audiencePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("audience: %w", err)
	}

	cfg.Collections = []CollectionConfig{{
		Name:       collectionName,
		Dimensions: dims,
		Audience:   audience,
	}}

	// 4. First source.
	kindPrompt := promptui.Select{
		Label: "Kind of the first source",
		Items: []string{"feed (RSS/Atom, content inline)", "json (paged listing plus per-item fetch)"},
	}
	kindIdx, _, err := kindPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("source kind: %w", err)
	}
	kinds := []SourceKind{SourceFeed, SourceJSON}

	sourceNamePrompt := promptui.Prompt{
		Label:   "Source name",
		Default: "primary",
	}
	sourceName, err := sourceNamePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("source name: %w", err)
	}

	urlPrompt := promptui.Prompt{
		Label:    "Source URL",
		Validate: validateNonEmpty,
	}
	sourceURL, err := urlPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("source url: %w", err)
	}

	cadencePrompt := promptui.Prompt{
		Label:   "Sync cadence (e.g. 1h, 30m; blank for on-demand only)",
		Default: "",
	}
	cadenceStr, err := cadencePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("cadence: %w", err)
	}
	var cadence time.Duration
	if cadenceStr != "" {
		cadence, err = time.ParseDuration(cadenceStr)
		if err != nil {
			return nil, fmt.Errorf("parsing cadence: %w", err)
		}
	}

	src := SourceConfig{
		Name:       sourceName,
		Kind:       kinds[kindIdx],
		URL:        sourceURL,
		Collection: collectionName,
		Cadence:    cadence,
	}
	ApplySourceDefaults(&src)
	cfg.Sources = []SourceConfig{src}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("resulting config is invalid: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return nil, err
	}

	fmt.Println()
	fmt.Printf("Configuration written to %s\n", path)
	fmt.Println("Add more sources and collections by editing the file directly.")
	return cfg, nil
}

func validateNonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("value is required")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}
