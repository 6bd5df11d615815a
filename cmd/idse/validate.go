package main

import (
	"github.com/spf13/cobra"

	"github.com/untoldecay/idse/internal/validation"
	"github.com/untoldecay/idse/internal/workspace"
)

var (
	validateProject string
	validateSession string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the rule set over a session and print the report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idseDir, err := requireWorkspace()
		if err != nil {
			return err
		}
		session := validateSession
		if session == "" {
			if session, err = workspace.CurrentSession(idseDir, validateProject); err != nil {
				return err
			}
		}

		store, err := openStore(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		engine := validation.NewEngine(store, configuredRules())
		report, err := engine.ValidateSession(rootCtx, validateProject, session)
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateProject, "project", "p", "", "project name")
	validateCmd.Flags().StringVarP(&validateSession, "session", "s", "", "session (defaults to CURRENT_SESSION)")
	_ = validateCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(validateCmd)
}
