package main

import (
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <candidate-id>",
	Short: "Print the matched roles for a candidate",
	Long:  "Computes the same ranked role list the matched-roles endpoint returns. Pass --role to run the strict eligibility gate for one role instead.",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatch,
}

var (
	matchCVID   string
	matchRoleID string
)

func init() {
	matchCmd.Flags().StringVar(&matchCVID, "cv", "", "CV ID to match (defaults to the latest parsed CV)")
	matchCmd.Flags().StringVar(&matchRoleID, "role", "", "Check eligibility for this role only")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if matchRoleID != "" {
		result, err := app.Match.CheckEligibility(cmd.Context(), args[0], matchRoleID, matchCVID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	}

	resp, err := app.Match.GetMatchedRoles(cmd.Context(), args[0], matchCVID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
