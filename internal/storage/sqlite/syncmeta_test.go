package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

func strPtr(s string) *string { return &s }

func TestSaveSyncMetadataPartialUpdate(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	ctx := context.Background()

	a, err := store.SaveArtifact(ctx, "acme", "auth-flow", types.StageSpec, "# Spec\n", "alice")
	if err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}

	pushAt := time.Now().UTC().Truncate(time.Second)
	err = store.SaveSyncMetadata(ctx, a.ID, "blockstore", types.SyncUpdate{
		PushHash: strPtr(a.ContentHash),
		PushAt:   &pushAt,
		RemoteID: strPtr("row-123"),
	})
	if err != nil {
		t.Fatalf("failed to save sync metadata: %v", err)
	}

	// A later pull-only update must leave the push fields untouched.
	pullAt := pushAt.Add(time.Minute)
	err = store.SaveSyncMetadata(ctx, a.ID, "blockstore", types.SyncUpdate{
		PullHash: strPtr(a.ContentHash),
		PullAt:   &pullAt,
	})
	if err != nil {
		t.Fatalf("failed to update sync metadata: %v", err)
	}

	meta, err := store.GetSyncMetadata(ctx, a.ID, "blockstore")
	if err != nil {
		t.Fatalf("failed to get sync metadata: %v", err)
	}
	if meta.LastPushHash != a.ContentHash || meta.RemoteID != "row-123" {
		t.Errorf("push fields clobbered: %+v", meta)
	}
	if meta.LastPullHash != a.ContentHash || meta.LastPullAt == nil {
		t.Errorf("pull fields not written: %+v", meta)
	}
	if !meta.Skippable(a.ContentHash) {
		t.Error("expected metadata to be skippable for the pushed hash")
	}
	if meta.Skippable("other-hash") {
		t.Error("metadata skippable for a different hash")
	}
}

func TestSyncMetadataScopedPerBackend(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	ctx := context.Background()

	a, err := store.SaveArtifact(ctx, "acme", "auth-flow", types.StageSpec, "# Spec\n", "alice")
	if err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}
	if err := store.SaveSyncMetadata(ctx, a.ID, "blockstore", types.SyncUpdate{RemoteID: strPtr("row-1")}); err != nil {
		t.Fatalf("failed to save sync metadata: %v", err)
	}

	if _, err := store.GetSyncMetadata(ctx, a.ID, "other"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not found for unknown backend, got %v", err)
	}
	if err := store.SaveSyncMetadata(ctx, a.ID, "", types.SyncUpdate{}); !errors.Is(err, storage.ErrInvariantViolation) {
		t.Errorf("expected invariant violation for empty backend, got %v", err)
	}
}

func TestFindArtifactByRemoteID(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	ctx := context.Background()

	a, err := store.SaveArtifact(ctx, "acme", "auth-flow", types.StageSpec, "# Spec\n", "alice")
	if err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}
	if err := store.SaveSyncMetadata(ctx, a.ID, "blockstore", types.SyncUpdate{RemoteID: strPtr("row-9")}); err != nil {
		t.Fatalf("failed to save sync metadata: %v", err)
	}

	found, err := store.FindArtifactByRemoteID(ctx, "blockstore", "row-9")
	if err != nil {
		t.Fatalf("failed to resolve remote id: %v", err)
	}
	if found.ID != a.ID {
		t.Errorf("resolved wrong artifact: %d", found.ID)
	}

	if _, err := store.FindArtifactByRemoteID(ctx, "blockstore", "row-0"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not found for unmapped remote id, got %v", err)
	}
	if _, err := store.FindArtifactByRemoteID(ctx, "blockstore", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not found for empty remote id, got %v", err)
	}
}
