package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/idse/internal/types"
	"github.com/untoldecay/idse/internal/validation"
	"github.com/untoldecay/idse/internal/workspace"
)

var (
	saveProject string
	saveSession string
)

var saveCmd = &cobra.Command{
	Use:   "save <stage> [file]",
	Short: "Save a stage artifact from a file or stdin",
	Long: `Save writes one artifact for the current (or named) session at the given
pipeline stage. Content is read from the file argument, or from stdin when
the argument is omitted or "-". Saving an implementation artifact also
upserts the components named in its Component Impact Report.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage := types.Stage(args[0])
		if !types.ValidStage(stage) {
			return fmt.Errorf("unknown stage %q", args[0])
		}

		var content []byte
		var err error
		if len(args) == 2 && args[1] != "-" {
			content, err = os.ReadFile(args[1])
		} else {
			content, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("failed to read artifact content: %w", err)
		}

		idseDir, err := requireWorkspace()
		if err != nil {
			return err
		}
		session := saveSession
		if session == "" {
			if session, err = workspace.CurrentSession(idseDir, saveProject); err != nil {
				return err
			}
		}

		store, err := openStore(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		artifact, err := store.SaveArtifact(rootCtx, saveProject, session, stage, string(content), actorFlag)
		if err != nil {
			return err
		}

		// Implementation artifacts feed the component registry.
		if stage == types.StageImplementation {
			for _, comp := range validation.ParseComponentReport(artifact.Content) {
				comp.LastSeenInSession = session
				if _, err := store.SaveComponent(rootCtx, comp, actorFlag); err != nil {
					return fmt.Errorf("failed to register component %s: %w", comp.Name, err)
				}
			}
		}

		if jsonOutput {
			return printJSON(artifact)
		}
		fmt.Printf("Saved %s (hash %.12s)\n", artifact.IDSEID, artifact.ContentHash)
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVarP(&saveProject, "project", "p", "", "project name")
	saveCmd.Flags().StringVarP(&saveSession, "session", "s", "", "session (defaults to CURRENT_SESSION)")
	_ = saveCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(saveCmd)
}
