package main

import (
	"github.com/hazyhaar/newsnexus/requester"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one keyword triple from a start date",
	Long: `Plan the next uncovered window for the keyword triple, fetch the feed
and store new articles. Prints the outcome as JSON.

Examples:
  newsnexus run --and '"machine learning" policy' --start 2024-01-01
  newsnexus run --or 'ai llm' --not crypto --start 2024-03-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var prm requester.Params
		prm.And, _ = cmd.Flags().GetString("and")
		prm.Or, _ = cmd.Flags().GetString("or")
		prm.Not, _ = cmd.Flags().GetString("not")
		prm.StartDate, _ = cmd.Flags().GetString("start")

		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		out, err := svc.RunOnce(cmd.Context(), prm)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Run every enabled query set once and advance their cursors",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := svc.RunAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, runAllCmd)

	runCmd.Flags().String("and", "", "terms that must all match; quote phrases")
	runCmd.Flags().String("or", "", "terms of which one must match")
	runCmd.Flags().String("not", "", "terms to exclude")
	runCmd.Flags().String("start", "", "window start date, YYYY-MM-DD")
	_ = runCmd.MarkFlagRequired("start")
}
