package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datamancy/corpusd/internal/docstore"
	mcpserver "github.com/datamancy/corpusd/internal/mcp"
	"github.com/datamancy/corpusd/internal/search"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing corpus search tools for AI agents.`,
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

		store := docstore.NewStore(database)
		vectors, lexicon, _, err := buildIndexes(context.Background(), cfg, store)
		if err != nil {
			return err
		}

		gateway := search.NewGateway(vectors, lexicon, cfg.Collections)

		mcpserver.Version = Version
		total := 0
		for _, cc := range cfg.Collections {
			total += vectors.Count(cc.Name)
		}
		fmt.Fprintf(os.Stderr, "corpusd MCP server started on stdio (%d documents indexed)\n", total)

		return mcpserver.NewServer(gateway, store).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
