// Package workspace locates and manages the per-workspace .idse directory:
// database path, current-session pointers, the workspace lock, and
// session-scoped metadata files.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// DirName is the workspace marker directory.
const DirName = ".idse"

// DBFileName is the spine database file under the marker directory.
const DBFileName = "idse.db"

// Find walks up from the current directory looking for a .idse directory
// and returns its path, or "" when outside any workspace.
func Find() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return FindFrom(cwd)
}

// FindFrom walks up from dir looking for a .idse directory.
func FindFrom(dir string) string {
	for d := dir; ; d = filepath.Dir(d) {
		candidate := filepath.Join(d, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if d == filepath.Dir(d) {
			return ""
		}
	}
}

// Init creates the .idse directory under root and returns its path.
// Idempotent.
func Init(root string) (string, error) {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return dir, nil
}

// Root returns the workspace root for a .idse directory.
func Root(idseDir string) string {
	return filepath.Dir(idseDir)
}

// DBPath returns the spine database path for a .idse directory.
func DBPath(idseDir string) string {
	return filepath.Join(idseDir, DBFileName)
}

// Lock acquires the workspace lock, blocking up to timeout. Used around
// import and sync batches so two processes do not interleave writes.
func Lock(ctx context.Context, idseDir string, timeout time.Duration) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(idseDir, "workspace.lock"))
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire workspace lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("workspace is locked by another process")
	}
	return lock, nil
}

func projectDir(idseDir, project string) string {
	return filepath.Join(Root(idseDir), "projects", project)
}

// CurrentSession reads the project's CURRENT_SESSION pointer. The pointer
// file is authoritative for "which session am I on?".
func CurrentSession(idseDir, project string) (string, error) {
	data, err := os.ReadFile(filepath.Join(projectDir(idseDir, project), "CURRENT_SESSION"))
	if err != nil {
		return "", fmt.Errorf("no current session for project %s: %w", project, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetCurrentSession writes the project's CURRENT_SESSION pointer.
func SetCurrentSession(idseDir, project, session string) error {
	dir := projectDir(idseDir, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "CURRENT_SESSION"), []byte(session+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write current session pointer: %w", err)
	}
	return nil
}

// Metadata is the session-scoped metadata file, written only through
// repository-gated helpers.
type Metadata struct {
	Owner           string   `yaml:"owner"`
	Collaborators   []string `yaml:"collaborators,omitempty"`
	Changelog       string   `yaml:"changelog,omitempty"`
	ReviewChecklist []string `yaml:"review_checklist,omitempty"`
}

func metadataPath(idseDir, project, session string) string {
	return filepath.Join(projectDir(idseDir, project), "sessions", session, "metadata", "session.yaml")
}

// WriteMetadata persists a session's metadata file.
func WriteMetadata(idseDir, project, session string, meta *Metadata) error {
	path := metadataPath(idseDir, project, session)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads a session's metadata file.
func ReadMetadata(idseDir, project, session string) (*Metadata, error) {
	data, err := os.ReadFile(metadataPath(idseDir, project, session))
	if err != nil {
		return nil, fmt.Errorf("failed to read session metadata: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse session metadata: %w", err)
	}
	return &meta, nil
}
