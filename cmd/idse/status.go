package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a summary of spine contents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		stats, err := store.Statistics(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stats)
		}

		fmt.Printf("Projects:          %d\n", stats.Projects)
		fmt.Printf("Sessions:          %d (%d active, %d complete)\n",
			stats.Sessions, stats.ActiveSessions, stats.CompleteSessions)
		fmt.Printf("Artifacts:         %d\n", stats.Artifacts)
		fmt.Printf("Active claims:     %d (%d declared, %d converged)\n",
			stats.ActiveClaims, stats.DeclaredClaims, stats.ConvergedClaims)
		fmt.Printf("Promotion records: %d\n", stats.PromotionRecords)
		fmt.Printf("Components:        %d\n", stats.Components)
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database integrity and spine invariants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Verify(rootCtx); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, doctorCmd)
}
