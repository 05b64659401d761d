package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datamancy/corpusd/internal/checkpoint"
	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/fingerprint"
	"github.com/datamancy/corpusd/internal/indexer"
	"github.com/datamancy/corpusd/internal/progress"
	"github.com/datamancy/corpusd/internal/reconciler"
)

var syncSkipIndex bool

var syncCmd = &cobra.Command{
	Use:   "sync [source...]",
	Short: "Run one reconciliation cycle per source, then index",
	Long: `Fetches each named source once, classifies every item as new,
updated, unchanged, or repealed, applies the changes to the versioned
store, and drains the resulting journal into the search indexes.
With no arguments every configured source is synced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := docstore.NewStore(database)
		vectors, lexicon, embedder, err := buildIndexes(ctx, cfg, store)
		if err != nil {
			return err
		}

		cycles := reconciler.NewCycleStore(database)
		manager, err := reconciler.NewManager(cfg, checkpoint.NewStore(database),
			fingerprint.NewStore(database), store, cycles, nil)
		if err != nil {
			return err
		}

		sourceNames := args
		if len(sourceNames) == 0 {
			for _, sc := range cfg.Sources {
				sourceNames = append(sourceNames, sc.Name)
			}
		}

		steps := len(sourceNames)
		if !syncSkipIndex {
			steps += len(cfg.Collections)
		}
		reporter := progress.NewReporter()
		reporter.Start(steps, "Syncing sources")
		step := 0

		for _, name := range sourceNames {
			step++
			reporter.Update(step, fmt.Sprintf("Syncing %s", name))
			cycle, err := manager.RunOnce(ctx, name)
			if err != nil {
				reporter.Finish()
				return fmt.Errorf("syncing %s: %w", name, err)
			}
			if cycle.State != reconciler.StateCompleted {
				reporter.Finish()
				return fmt.Errorf("cycle for %s finished %s: %s", name, cycle.State, cycle.Error)
			}
			fmt.Fprintf(os.Stderr, "%s: %d new, %d updated, %d unchanged, %d repealed, %d failed\n",
				name, cycle.Counts.New, cycle.Counts.Updated, cycle.Counts.Unchanged,
				cycle.Counts.Repealed, cycle.Counts.Failed)
		}

		if !syncSkipIndex {
			ix := indexer.New(database, store, embedder, vectors, lexicon, nil, cfg.Indexer.BatchSize)
			for _, cc := range cfg.Collections {
				step++
				reporter.Update(step, fmt.Sprintf("Indexing %s", cc.Name))
				applied, err := ix.Sync(ctx, cc.Name)
				if err != nil {
					reporter.Finish()
					return fmt.Errorf("indexing %s: %w", cc.Name, err)
				}
				if applied > 0 {
					fmt.Fprintf(os.Stderr, "%s: applied %d index changes\n", cc.Name, applied)
				}
			}

			persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := vectors.Persist(persistCtx, cfg.DataDir); err != nil {
				reporter.Finish()
				return fmt.Errorf("persisting vector store: %w", err)
			}
		}

		reporter.Finish()
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncSkipIndex, "skip-index", false, "reconcile only, leave the indexes stale")
	rootCmd.AddCommand(syncCmd)
}
