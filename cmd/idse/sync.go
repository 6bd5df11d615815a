package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/idse/internal/config"
	"github.com/untoldecay/idse/internal/remote"
	"github.com/untoldecay/idse/internal/schemamap"
	"github.com/untoldecay/idse/internal/storage/sqlite"
	"github.com/untoldecay/idse/internal/workspace"
)

var (
	syncProject string
	syncSession string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push and pull sessions against the remote backend",
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push a session's artifacts to the remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync("push")
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull a session's artifacts from the remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync("pull")
	},
}

func runSync(direction string) error {
	idseDir, session, store, err := sessionContext(syncProject, syncSession)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	projector, err := buildProjector(store)
	if err != nil {
		return err
	}

	// Sync batches hold the workspace lock so push bookkeeping and file
	// imports cannot interleave.
	lock, err := workspace.Lock(rootCtx, idseDir, 30*time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	var result *remote.BatchResult
	if direction == "push" {
		result, err = projector.Push(rootCtx, syncProject, session)
	} else {
		result, err = projector.Pull(rootCtx, syncProject, session)
	}
	if result != nil {
		if jsonOutput {
			_ = printJSON(result)
		} else {
			fmt.Printf("%s %s\n", direction, result.Summary())
			for _, f := range result.Failed {
				fmt.Printf("  %s: %s (%s)\n", f.IDSEID, f.Err, f.Kind)
			}
		}
	}
	if err != nil {
		return err
	}
	if !result.OK() {
		os.Exit(1)
	}
	return nil
}

// buildProjector wires the configured backend and schema map.
func buildProjector(store *sqlite.Store) (*remote.Projector, error) {
	backendName := config.GetString("sync_backend")
	if backendName == "none" || backendName == "" {
		return nil, fmt.Errorf("no sync backend configured; set sync_backend")
	}
	if backendName != "blockstore" {
		return nil, fmt.Errorf("unknown sync backend %q", backendName)
	}

	endpoint := config.GetString("remote.endpoint")
	if endpoint == "" {
		return nil, fmt.Errorf("remote.endpoint is not configured")
	}
	apiKey, err := readCredential(config.GetString("remote.credentials_dir"))
	if err != nil {
		return nil, err
	}

	schema := schemamap.Default()
	if path := config.GetString("remote.schema_map"); path != "" {
		if schema, err = schemamap.Load(path); err != nil {
			return nil, err
		}
	}

	return remote.NewProjector(store, remote.NewBlockstore(endpoint, apiKey), schema, remote.Options{
		Anchor:      config.GetString("remote.anchor"),
		Concurrency: config.GetInt("remote.concurrency"),
	}), nil
}

// readCredential loads the API token from the read-only credentials
// directory.
func readCredential(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("remote.credentials_dir is not configured")
	}
	data, err := os.ReadFile(filepath.Join(dir, "token"))
	if err != nil {
		return "", fmt.Errorf("failed to read remote credential: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func init() {
	syncCmd.PersistentFlags().StringVarP(&syncProject, "project", "p", "", "project name")
	syncCmd.PersistentFlags().StringVarP(&syncSession, "session", "s", "", "session (defaults to CURRENT_SESSION)")
	_ = syncCmd.MarkPersistentFlagRequired("project")
	syncCmd.AddCommand(syncPushCmd, syncPullCmd)
	rootCmd.AddCommand(syncCmd)
}
