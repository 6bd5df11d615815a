package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// seedChain saves one artifact per pipeline stage and links each to its
// predecessor, returning the artifacts in stage order.
func seedChain(t *testing.T, store *Store, project, session string, n int) []*types.Artifact {
	t.Helper()
	ctx := context.Background()

	artifacts := make([]*types.Artifact, 0, n)
	for i := 0; i < n; i++ {
		stage := types.PipelineStages[i]
		a, err := store.SaveArtifact(ctx, project, session, stage, fmt.Sprintf("# %s\n", stage), "alice")
		if err != nil {
			t.Fatalf("failed to save %s artifact: %v", stage, err)
		}
		if i > 0 {
			if err := store.SaveDependency(ctx, a.ID, artifacts[i-1].ID, "alice"); err != nil {
				t.Fatalf("failed to link %s to predecessor: %v", stage, err)
			}
		}
		artifacts = append(artifacts, a)
	}
	return artifacts
}

func TestSaveDependencyRejectsSelfEdge(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	chain := seedChain(t, store, "acme", "auth-flow", 1)

	err := store.SaveDependency(context.Background(), chain[0].ID, chain[0].ID, "alice")
	if !errors.Is(err, storage.ErrInvariantViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
}

func TestSaveDependencyRejectsTwoNodeCycle(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	chain := seedChain(t, store, "acme", "auth-flow", 2)

	// chain[1] already depends on chain[0]; the reverse edge must fail.
	err := store.SaveDependency(context.Background(), chain[0].ID, chain[1].ID, "alice")
	if !errors.Is(err, storage.ErrInvariantViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
}

func TestSaveDependencyIdempotent(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	chain := seedChain(t, store, "acme", "auth-flow", 2)
	ctx := context.Background()

	if err := store.SaveDependency(ctx, chain[1].ID, chain[0].ID, "alice"); err != nil {
		t.Fatalf("repeat save failed: %v", err)
	}

	deps, err := store.GetDependencyRecords(ctx, chain[1].ID)
	if err != nil {
		t.Fatalf("failed to get dependency records: %v", err)
	}
	if len(deps) != 1 {
		t.Errorf("expected a single edge, got %d", len(deps))
	}
}

func TestGetDependenciesBoundedTraversal(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	chain := seedChain(t, store, "acme", "auth-flow", 4)
	ctx := context.Background()
	last := chain[len(chain)-1]

	// Depth 1 reaches only the direct upstream.
	direct, err := store.GetDependencies(ctx, last.ID, types.DirectionUpstream, 1)
	if err != nil {
		t.Fatalf("failed to traverse upstream: %v", err)
	}
	if len(direct) != 1 || direct[0].ID != chain[2].ID {
		t.Errorf("depth-1 traversal returned %d artifacts", len(direct))
	}

	// The default bound reaches the whole chain, each node once.
	all, err := store.GetDependencies(ctx, last.ID, types.DirectionUpstream, 0)
	if err != nil {
		t.Fatalf("failed to traverse upstream: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 reachable artifacts, got %d", len(all))
	}

	down, err := store.GetDependencies(ctx, chain[0].ID, types.DirectionDownstream, 0)
	if err != nil {
		t.Fatalf("failed to traverse downstream: %v", err)
	}
	if len(down) != 3 {
		t.Errorf("expected 3 downstream artifacts, got %d", len(down))
	}
}

func TestReplaceUpstreamDependencies(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	chain := seedChain(t, store, "acme", "auth-flow", 4)
	ctx := context.Background()
	last := chain[len(chain)-1]

	// last currently depends on chain[2]; swap in chain[0] and chain[1].
	err := store.ReplaceUpstreamDependencies(ctx, last.ID, []int64{chain[0].ID, chain[1].ID}, "pull")
	if err != nil {
		t.Fatalf("failed to replace dependencies: %v", err)
	}

	deps, err := store.GetDependencyRecords(ctx, last.ID)
	if err != nil {
		t.Fatalf("failed to get dependency records: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("expected 2 edges after replace, got %d", len(deps))
	}
	if deps[0].DependsOnID != chain[0].ID || deps[1].DependsOnID != chain[1].ID {
		t.Errorf("unexpected edge set: %d, %d", deps[0].DependsOnID, deps[1].DependsOnID)
	}

	// Replacing with an invalid set rolls back the clear.
	err = store.ReplaceUpstreamDependencies(ctx, last.ID, []int64{last.ID}, "pull")
	if !errors.Is(err, storage.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	deps, err = store.GetDependencyRecords(ctx, last.ID)
	if err != nil {
		t.Fatalf("failed to get dependency records: %v", err)
	}
	if len(deps) != 2 {
		t.Errorf("failed replace clobbered the edge set: %d edges", len(deps))
	}
}
