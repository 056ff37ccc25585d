package main

import (
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the configured source and its attribution entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		src, err := svc.EnsureSource(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(src)
	},
}

var addSetCmd = &cobra.Command{
	Use:   "add-set",
	Short: "Add a recurring keyword triple for the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		and, _ := cmd.Flags().GetString("and")
		or, _ := cmd.Flags().GetString("or")
		not, _ := cmd.Flags().GetString("not")
		start, _ := cmd.Flags().GetString("start")

		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		qs, err := svc.AddQuerySet(cmd.Context(), and, or, not, start)
		if err != nil {
			return err
		}
		return printJSON(qs)
	},
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Print the request history, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		list, err := svc.ListRequests(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return printJSON(list)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd, addSetCmd, requestsCmd)

	addSetCmd.Flags().String("and", "", "terms that must all match")
	addSetCmd.Flags().String("or", "", "terms of which one must match")
	addSetCmd.Flags().String("not", "", "terms to exclude")
	addSetCmd.Flags().String("start", "", "initial cursor, YYYY-MM-DD")

	requestsCmd.Flags().Int("limit", 20, "max rows")
}
