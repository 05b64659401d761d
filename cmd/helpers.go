package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datamancy/corpusd/internal/config"
	"github.com/datamancy/corpusd/internal/db"
	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/embeddings"
	"github.com/datamancy/corpusd/internal/lexical"
	"github.com/datamancy/corpusd/internal/vectordb"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*db.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	database, err := db.Open(filepath.Join(cfg.DataDir, "corpusd.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

// buildIndexes constructs both search backends. The vector store is
// loaded from its persisted snapshot when one exists; the lexical index
// lives in memory only and is rebuilt from the document store's current
// records on every start.
func buildIndexes(ctx context.Context, cfg *config.Config, store *docstore.Store) (*vectordb.Store, *lexical.Index, embeddings.Embedder, error) {
	embedder, err := embeddings.FromConfig(cfg.Embedding)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating embedder: %w", err)
	}

	vectors := vectordb.NewStore(embedder)
	if err := vectors.Load(ctx, cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load vector store from %s: %v\n", cfg.DataDir, err)
	}
	for _, cc := range cfg.Collections {
		if err := vectors.EnsureCollection(cc.Name, cc.Dimensions); err != nil {
			return nil, nil, nil, fmt.Errorf("ensuring collection %s: %w", cc.Name, err)
		}
	}

	lexicon := lexical.NewIndex()
	for _, cc := range cfg.Collections {
		lexicon.EnsureCollection(cc.Name)
		cursor := int64(0)
		for {
			records, next, err := store.CurrentInCollection(ctx, cc.Name, cursor, 500)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("rebuilding lexical index for %s: %w", cc.Name, err)
			}
			if len(records) == 0 {
				break
			}
			for _, rec := range records {
				lexicon.Upsert(cc.Name, lexical.Entry{
					Identity:    rec.Identity,
					Title:       rec.Title,
					Content:     rec.Content,
					LastChecked: rec.LastChecked,
				})
			}
			cursor = next
		}
	}

	return vectors, lexicon, embedder, nil
}
