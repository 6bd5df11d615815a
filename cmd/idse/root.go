package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/idse/internal/audit"
	"github.com/untoldecay/idse/internal/config"
	"github.com/untoldecay/idse/internal/debug"
	"github.com/untoldecay/idse/internal/storage/sqlite"
	"github.com/untoldecay/idse/internal/workspace"
)

var (
	rootCtx    = context.Background()
	jsonOutput bool
	actorFlag  string
	dbFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "idse",
	Short: "Content-addressed artifact spine for design-time documentation",
	Long: `idse stores pipeline artifacts, blueprint claims, and their lineage in a
workspace-local SQLite database, projects them to human-readable documents,
and syncs them against a remote row-store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cmd.Flags().Changed("json") {
			config.Set("json", jsonOutput)
		}
		jsonOutput = config.GetBool("json")
		if actorFlag == "" {
			actorFlag = config.GetString("actor")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "actor recorded on writes")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "database path override")
}

// requireWorkspace locates the enclosing .idse directory.
func requireWorkspace() (string, error) {
	if idseDir := workspace.Find(); idseDir != "" {
		return idseDir, nil
	}
	return "", fmt.Errorf("no %s workspace found; run 'idse init' first", workspace.DirName)
}

// openStore opens the workspace database and wires the audit sink.
func openStore(ctx context.Context) (*sqlite.Store, error) {
	path := dbFlag
	if path == "" {
		path = config.GetString("db")
	}
	if path == "" {
		idseDir, err := requireWorkspace()
		if err != nil {
			return nil, err
		}
		path = workspace.DBPath(idseDir)
	}

	debug.Logf("opening store at %s", path)
	store, err := sqlite.New(ctx, path)
	if err != nil {
		return nil, err
	}
	store.Audit = func(entity, id, op, actor string) {
		// Best effort: audit must never fail the write it records.
		_ = audit.Append(audit.Entry{Entity: entity, ID: id, Op: op, Actor: actor})
	}
	return store, nil
}

// sessionContext resolves the workspace, the target session (falling back
// to CURRENT_SESSION), and an open store.
func sessionContext(project, session string) (idseDir, resolved string, store *sqlite.Store, err error) {
	idseDir, err = requireWorkspace()
	if err != nil {
		return "", "", nil, err
	}
	resolved = session
	if resolved == "" {
		if resolved, err = workspace.CurrentSession(idseDir, project); err != nil {
			return "", "", nil, err
		}
	}
	store, err = openStore(rootCtx)
	if err != nil {
		return "", "", nil, err
	}
	return idseDir, resolved, store, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
