package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/idse/internal/views"
	"github.com/untoldecay/idse/internal/workspace"
)

var (
	renderProject string
	renderSession string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Regenerate BLUEPRINT.md and META.md from the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idseDir, err := requireWorkspace()
		if err != nil {
			return err
		}
		store, err := openStore(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		renderer := views.NewRenderer(store)
		if err := renderer.WriteProjectDocs(rootCtx, workspace.Root(idseDir), renderProject); err != nil {
			return err
		}
		fmt.Printf("Rendered project docs for %s\n", renderProject)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a session's artifacts to stage files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idseDir, session, store, err := sessionContext(renderProject, renderSession)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		renderer := views.NewRenderer(store)
		if err := renderer.ExportSession(rootCtx, workspace.Root(idseDir), renderProject, session); err != nil {
			return err
		}
		fmt.Printf("Exported session %s/%s\n", renderProject, session)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Read stage files back into the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idseDir, session, store, err := sessionContext(renderProject, renderSession)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		// Imports take the workspace lock so concurrent processes do not
		// interleave file reads with database writes.
		lock, err := workspace.Lock(rootCtx, idseDir, 30*time.Second)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Unlock() }()

		renderer := views.NewRenderer(store)
		if err := renderer.ImportSession(rootCtx, workspace.Root(idseDir), renderProject, session); err != nil {
			return err
		}
		fmt.Printf("Imported session %s/%s\n", renderProject, session)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{renderCmd, exportCmd, importCmd} {
		cmd.Flags().StringVarP(&renderProject, "project", "p", "", "project name")
		_ = cmd.MarkFlagRequired("project")
	}
	exportCmd.Flags().StringVarP(&renderSession, "session", "s", "", "session (defaults to CURRENT_SESSION)")
	importCmd.Flags().StringVarP(&renderSession, "session", "s", "", "session (defaults to CURRENT_SESSION)")
	rootCmd.AddCommand(renderCmd, exportCmd, importCmd)
}
