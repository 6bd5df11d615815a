package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/idse/internal/config"
	"github.com/untoldecay/idse/internal/types"
	"github.com/untoldecay/idse/internal/validation"
	"github.com/untoldecay/idse/internal/workspace"
)

var sessionProject string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage pipeline sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new <session>",
	Short: "Create a feature session and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		idseDir, err := requireWorkspace()
		if err != nil {
			return err
		}
		store, err := openStore(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		sess, err := store.SaveSession(rootCtx, sessionProject, sessionID, types.SessionFeature, actorFlag)
		if err != nil {
			return err
		}
		if err := workspace.SetCurrentSession(idseDir, sessionProject, sessionID); err != nil {
			return err
		}
		if err := workspace.WriteMetadata(idseDir, sessionProject, sessionID, &workspace.Metadata{Owner: actorFlag}); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(sess)
		}
		fmt.Printf("Created session %s/%s\n", sessionProject, sessionID)
		return nil
	},
}

var sessionCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current session pointer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idseDir, err := requireWorkspace()
		if err != nil {
			return err
		}
		current, err := workspace.CurrentSession(idseDir, sessionProject)
		if err != nil {
			return err
		}
		fmt.Println(current)
		return nil
	},
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete <session>",
	Short: "Mark a session complete, gated on validation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		engine := validation.NewEngine(store, configuredRules())
		report, err := engine.GateCompletion(rootCtx, sessionProject, args[0], actorFlag)

		var blocked *validation.CompletionBlockedError
		if errors.As(err, &blocked) {
			printReport(blocked.Report)
			os.Exit(1)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(report)
		}
		fmt.Printf("Session %s/%s is complete\n", sessionProject, args[0])
		return nil
	},
}

func configuredRules() validation.Rules {
	return validation.DefaultRules().
		WithSectionOverrides(config.GetStringMapStringSlice("validation.required_sections"))
}

func printReport(report *types.ValidationReport) {
	if jsonOutput {
		_ = printJSON(report)
		return
	}
	fmt.Printf("Validation for session %s: ", report.SessionID)
	if report.OK {
		fmt.Println("PASS")
	} else {
		fmt.Println("FAIL")
	}
	for _, stage := range types.PipelineStages {
		result, ok := report.PerStage[stage]
		if !ok {
			continue
		}
		mark := "ok"
		if !result.OK {
			mark = "FAIL"
		}
		fmt.Printf("  %-14s %s\n", stage, mark)
		for _, msg := range result.Errors {
			fmt.Printf("    - %s\n", msg)
		}
	}
}

func init() {
	sessionCmd.PersistentFlags().StringVarP(&sessionProject, "project", "p", "", "project name")
	_ = sessionCmd.MarkPersistentFlagRequired("project")
	sessionCmd.AddCommand(sessionNewCmd, sessionCurrentCmd, sessionCompleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
