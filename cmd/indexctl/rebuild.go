package main

import (
	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild role chunks from all active roles",
	Long:  "Re-embeds every active role and atomically replaces the role chunks in the vector index. Resume chunks are left untouched.",
	Args:  cobra.NoArgs,
	RunE:  runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	indexed, err := app.Indexing.Rebuild(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"status": "ok", "indexed": indexed})
}
