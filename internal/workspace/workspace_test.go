package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindFromWalksUp(t *testing.T) {
	root := t.TempDir()
	idseDir, err := Init(root)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("failed to create nested dirs: %v", err)
	}
	if got := FindFrom(nested); got != idseDir {
		t.Errorf("FindFrom(%s) = %q, want %q", nested, got, idseDir)
	}
	if got := FindFrom(t.TempDir()); got != "" {
		t.Errorf("expected no workspace, got %q", got)
	}
}

func TestCurrentSessionPointer(t *testing.T) {
	root := t.TempDir()
	idseDir, err := Init(root)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if _, err := CurrentSession(idseDir, "orch"); err == nil {
		t.Error("expected error before pointer exists")
	}
	if err := SetCurrentSession(idseDir, "orch", "s1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := CurrentSession(idseDir, "orch")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "s1" {
		t.Errorf("got %q, want s1", got)
	}
}

func TestLockExcludes(t *testing.T) {
	root := t.TempDir()
	idseDir, err := Init(root)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	ctx := context.Background()
	lock, err := Lock(ctx, idseDir, time.Second)
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := Lock(ctx, idseDir, 200*time.Millisecond); err == nil {
		t.Error("second lock should time out while the first is held")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	root := t.TempDir()
	idseDir, err := Init(root)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	want := &Metadata{
		Owner:           "architect",
		Collaborators:   []string{"dev-a", "dev-b"},
		ReviewChecklist: []string{"invariants hold", "docs regenerated"},
	}
	if err := WriteMetadata(idseDir, "orch", "s1", want); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := ReadMetadata(idseDir, "orch", "s1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Owner != want.Owner || len(got.Collaborators) != 2 || len(got.ReviewChecklist) != 2 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}
