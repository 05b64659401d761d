package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the corpus from the command line",
	Long:  `Runs one retrieval query against the local indexes and prints the ranked results.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	searchCmd.Flags().String("collection", "", "restrict to one collection")
	searchCmd.Flags().String("mode", "hybrid", "retrieval mode: hybrid, vector, lexical")
	searchCmd.Flags().String("audience", "", "only search collections tagged for this audience")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	limit, _ := cmd.Flags().GetInt("limit")
	collection, _ := cmd.Flags().GetString("collection")
	mode, _ := cmd.Flags().GetString("mode")
	audience, _ := cmd.Flags().GetString("audience")
	jsonOutput, _ := cmd.Flags().GetBool("json")

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
	vectors, lexicon, _, err := buildIndexes(ctx, cfg, store)
	if err != nil {
		return err
	}

	gateway := search.NewGateway(vectors, lexicon, cfg.Collections)

	req := search.Request{
		Query:    args[0],
		Mode:     search.Mode(mode),
		Limit:    limit,
		Audience: audience,
	}
	if collection != "" {
		req.Collections = []string{collection}
	}

	resp, err := gateway.Search(ctx, req)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Degraded {
		fmt.Fprintln(os.Stderr, "Warning: one retrieval backend was unavailable; results are partial.")
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results. Run `corpusd sync` first if the corpus is empty.")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. %s (%s/%s) score=%.4f\n", i+1, r.Title, r.Collection, r.Identity, r.Score)
		if r.Snippet != "" {
			fmt.Printf("   %s\n", r.Snippet)
		}
	}
	return nil
}
