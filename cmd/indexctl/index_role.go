package main

import (
	"github.com/spf13/cobra"
)

var indexRoleCmd = &cobra.Command{
	Use:   "index-role <role-id>",
	Short: "Re-index a single role",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexRole,
}

func init() {
	rootCmd.AddCommand(indexRoleCmd)
}

func runIndexRole(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	chunks, err := app.Indexing.IndexRole(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"role_id": args[0], "chunks": chunks})
}
