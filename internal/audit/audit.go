// Package audit appends best-effort write events to the workspace
// interactions log. The log is JSONL, append-only, and lives outside the
// database transaction: a failed append never fails the write it records.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/untoldecay/idse/internal/workspace"
)

// FileName is the audit log file name stored under .idse/.
const FileName = "interactions.jsonl"

// Entry is one committed write event.
type Entry struct {
	Entity    string    `json:"entity"`
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Path returns the audit log path for the enclosing workspace.
func Path() (string, error) {
	idseDir := workspace.Find()
	if idseDir == "" {
		return "", fmt.Errorf("no %s directory found", workspace.DirName)
	}
	return filepath.Join(idseDir, FileName), nil
}

// Append writes one event to the log, creating it if needed.
func Append(entry Entry) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return AppendTo(path, entry)
}

// AppendTo writes one event to the given log file.
func AppendTo(path string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ReadAll loads every entry from the given log file, oldest first.
func ReadAll(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("malformed audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
