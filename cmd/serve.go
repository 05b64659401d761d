package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datamancy/corpusd/internal/checkpoint"
	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/events"
	"github.com/datamancy/corpusd/internal/fingerprint"
	"github.com/datamancy/corpusd/internal/indexer"
	"github.com/datamancy/corpusd/internal/reconciler"
	"github.com/datamancy/corpusd/internal/search"
	"github.com/datamancy/corpusd/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync, index, and search service",
	Long: `Starts the corpusd service: scheduled source reconciliation, the
background indexer, and the HTTP API for triggers, search, and
introspection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		store := docstore.NewStore(database)
		vectors, lexicon, embedder, err := buildIndexes(ctx, cfg, store)
		if err != nil {
			return err
		}

		hub := events.NewHub()
		cycles := reconciler.NewCycleStore(database)
		checkpoints := checkpoint.NewStore(database)
		manager, err := reconciler.NewManager(cfg, checkpoints,
			fingerprint.NewStore(database), store, cycles, hub)
		if err != nil {
			return err
		}

		ix := indexer.New(database, store, embedder, vectors, lexicon, hub, cfg.Indexer.BatchSize)
		gateway := search.NewGateway(vectors, lexicon, cfg.Collections)

		srv := server.New(cfg.Server, manager, cycles, ix, vectors, gateway, hub, checkpoints, cfg.Collections)

		collectionNames := make([]string, len(cfg.Collections))
		for i, cc := range cfg.Collections {
			collectionNames[i] = cc.Name
		}

		manager.Start(cfg)
		ix.Start(collectionNames, cfg.Indexer.PollInterval)

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-runCtx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down...")
			manager.Stop()
			ix.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := vectors.Persist(shutdownCtx, cfg.DataDir); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: persisting vector store: %v\n", err)
			}
			srv.Shutdown(shutdownCtx)
		}()

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured HTTP port")
	rootCmd.AddCommand(serveCmd)
}
