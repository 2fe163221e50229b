package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var branchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "Inspect the branch list",
}

var branchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every loaded branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, b := range loadBranches() {
			fmt.Fprintf(out, "%s\t%.4f,%.4f\t%s\n", b.Name, b.Latitude, b.Longitude, b.Phone)
		}
		return nil
	},
}

var branchesNearCmd = &cobra.Command{
	Use:   "near <place>",
	Short: "Find the branches nearest to a place",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := initResolver(loadBranches())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resolver.Respond(cmd.Context(), strings.Join(args, " ")))
		return nil
	},
}

func init() {
	branchesCmd.AddCommand(branchesListCmd, branchesNearCmd)
	rootCmd.AddCommand(branchesCmd)
}
