package main

import (
	"strings"

	"github.com/spf13/cobra"

	"talent-match/internal/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a similarity search against the vector index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var (
	searchTag string
	searchK   int
)

func init() {
	searchCmd.Flags().StringVarP(&searchTag, "tag", "t", string(types.TagRole), "Chunk tag to search (role or resume)")
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 5, "Maximum number of distinct owners to return")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	hits, err := app.Indexing.Search(cmd.Context(), strings.Join(args, " "), types.ChunkTag(searchTag), searchK)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), hits)
}
