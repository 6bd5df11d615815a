package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/idse/internal/config"
	"github.com/untoldecay/idse/internal/types"
	"github.com/untoldecay/idse/internal/workspace"
)

var initStack string

var initCmd = &cobra.Command{
	Use:   "init <project>",
	Short: "Initialize a workspace and project with its blueprint session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project := args[0]

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		idseDir := workspace.FindFrom(cwd)
		if idseDir == "" {
			if idseDir, err = workspace.Init(cwd); err != nil {
				return err
			}
		}
		if dbFlag == "" && config.GetString("db") == "" {
			dbFlag = workspace.DBPath(idseDir)
		}

		store, err := openStore(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		p, err := store.SaveProject(rootCtx, project, initStack)
		if err != nil {
			return err
		}
		if _, err := store.SaveSession(rootCtx, project, types.BlueprintSessionID, types.SessionBlueprint, actorFlag); err != nil {
			return err
		}
		if err := workspace.SetCurrentSession(idseDir, project, types.BlueprintSessionID); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(p)
		}
		fmt.Printf("Initialized project %s (workspace %s)\n", project, workspace.Root(idseDir))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initStack, "stack", "", "project technology stack")
	rootCmd.AddCommand(initCmd)
}
