package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "idse.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedSession creates a project plus a feature session ready to hold
// artifacts.
func seedSession(t *testing.T, store *Store, project, session string) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.SaveProject(ctx, project, "go"); err != nil {
		t.Fatalf("failed to save project: %v", err)
	}
	if _, err := store.SaveSession(ctx, project, session, types.SessionFeature, "alice"); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
}

func TestNewIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "idse.db")

	store, err := New(ctx, path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if _, err := store.SaveProject(ctx, "acme", ""); err != nil {
		t.Fatalf("failed to save project: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	// Reopening reapplies the schema and reruns migrations; both must be
	// no-ops against an up-to-date database.
	store, err = New(ctx, path)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := store.GetProject(ctx, "acme"); err != nil {
		t.Fatalf("data did not survive reopen: %v", err)
	}
}

func TestSaveProjectIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.SaveProject(ctx, "acme", "go")
	if err != nil {
		t.Fatalf("failed to save project: %v", err)
	}
	second, err := store.SaveProject(ctx, "acme", "")
	if err != nil {
		t.Fatalf("repeat save failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("repeat save created a new row: %d vs %d", second.ID, first.ID)
	}
	if second.Stack != "go" {
		t.Errorf("empty stack overwrote existing value: %q", second.Stack)
	}
}

func TestBlueprintSessionTypePairing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.SaveProject(ctx, "acme", ""); err != nil {
		t.Fatalf("failed to save project: %v", err)
	}

	// The reserved ID infers the blueprint type when none is given.
	sess, err := store.SaveSession(ctx, "acme", types.BlueprintSessionID, "", "")
	if err != nil {
		t.Fatalf("failed to save blueprint session: %v", err)
	}
	if sess.Type != types.SessionBlueprint {
		t.Errorf("expected inferred blueprint type, got %q", sess.Type)
	}

	// A feature session may not squat on the reserved ID, and the blueprint
	// type may not attach to any other ID.
	if _, err := store.SaveSession(ctx, "acme", types.BlueprintSessionID, types.SessionFeature, ""); !errors.Is(err, storage.ErrInvariantViolation) {
		t.Errorf("expected invariant violation for feature on reserved ID, got %v", err)
	}
	if _, err := store.SaveSession(ctx, "acme", "auth-flow", types.SessionBlueprint, ""); !errors.Is(err, storage.ErrInvariantViolation) {
		t.Errorf("expected invariant violation for blueprint on plain ID, got %v", err)
	}
}

func TestSetSessionStatusRejectsUnknown(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	ctx := context.Background()

	if err := store.SetSessionStatus(ctx, "acme", "auth-flow", "finished", "alice"); !errors.Is(err, storage.ErrInvariantViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
	if err := store.SetSessionStatus(ctx, "acme", "auth-flow", types.SessionInProgress, "alice"); err != nil {
		t.Fatalf("valid status transition failed: %v", err)
	}

	sess, err := store.GetSession(ctx, "acme", "auth-flow")
	if err != nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if sess.Status != types.SessionInProgress {
		t.Errorf("status not persisted: %q", sess.Status)
	}
}

func TestErrorMapping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetProject(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not found for missing project, got %v", err)
	}
	if _, err := store.FindByIDSEID(ctx, "acme::s1::spec"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not found for missing artifact, got %v", err)
	}
	if _, err := store.SaveArtifact(ctx, "ghost", "s1", types.StageSpec, "body", "alice"); !errors.Is(err, storage.ErrInvariantViolation) {
		t.Errorf("expected invariant violation for artifact without session, got %v", err)
	}
}

func TestRunInTransactionRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		if _, err := tx.SaveProject(ctx, "acme", ""); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	if _, err := store.GetProject(ctx, "acme"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rolled-back write is visible: %v", err)
	}
}

func TestNestedRunInTransactionReusesOuter(t *testing.T) {
	store := newTestStore(t)

	// The pool holds one connection, so a nested call that began its own
	// transaction would wait on that connection forever. The deadline turns
	// a regression into a fast failure instead of a hang.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		if _, err := tx.SaveProject(ctx, "acme", ""); err != nil {
			return err
		}
		// Joins the outer transaction and sees its uncommitted project row.
		return store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
			_, err := tx.SaveSession(ctx, "acme", "auth-flow", types.SessionFeature, "alice")
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested transaction failed: %v", err)
	}
	if _, err := store.GetSession(context.Background(), "acme", "auth-flow"); err != nil {
		t.Fatalf("nested write not committed: %v", err)
	}
}

func TestNestedRunInTransactionRollsBackTogether(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		if _, err := tx.SaveProject(ctx, "acme", ""); err != nil {
			return err
		}
		return store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
			if _, err := tx.SaveSession(ctx, "acme", "auth-flow", types.SessionFeature, "alice"); err != nil {
				return err
			}
			return boom
		})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected inner error, got %v", err)
	}

	// The inner failure rolled back the whole transaction.
	if _, err := store.GetProject(context.Background(), "acme"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("outer write survived a nested failure: %v", err)
	}
}

func TestAuditFiresAfterCommitOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var events []string
	store.Audit = func(entity, id, op, actor string) {
		events = append(events, entity+":"+id+":"+op)
	}

	if _, err := store.SaveProject(ctx, "acme", ""); err != nil {
		t.Fatalf("failed to save project: %v", err)
	}
	if len(events) != 1 || events[0] != "project:acme:save" {
		t.Fatalf("unexpected audit trail: %v", events)
	}

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		if _, err := tx.SaveSession(ctx, "acme", "auth-flow", types.SessionFeature, "alice"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if len(events) != 1 {
		t.Errorf("rolled-back transaction emitted audit events: %v", events[1:])
	}
}

func TestVerifyDetectsTamperedContent(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	ctx := context.Background()

	a, err := store.SaveArtifact(ctx, "acme", "auth-flow", types.StageSpec, "# Spec\n", "alice")
	if err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}
	if err := store.Verify(ctx); err != nil {
		t.Fatalf("verify failed on a healthy store: %v", err)
	}

	if _, err := store.UnderlyingDB().Exec(`UPDATE artifacts SET content = 'tampered' WHERE id = ?`, a.ID); err != nil {
		t.Fatalf("failed to tamper artifact: %v", err)
	}
	if err := store.Verify(ctx); !errors.Is(err, storage.ErrCorruption) {
		t.Errorf("expected corruption error, got %v", err)
	}
}

func TestVerifyDetectsOriginViolations(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	ctx := context.Background()

	project, err := store.GetProject(ctx, "acme")
	if err != nil {
		t.Fatalf("failed to load project: %v", err)
	}
	if _, err := store.InsertClaim(ctx, &types.Claim{
		ProjectID:      project.ID,
		Classification: types.ClassInvariant,
		ClaimText:      "All writes are transactional",
		Origin:         types.OriginConverged,
	}); err != nil {
		t.Fatalf("failed to insert claim: %v", err)
	}

	// A converged claim without a promotion record is corrupt by definition.
	if err := store.Verify(ctx); !errors.Is(err, storage.ErrCorruption) {
		t.Errorf("expected corruption error for converged claim without record, got %v", err)
	}
}

func TestStatistics(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "acme", "auth-flow")
	ctx := context.Background()

	if _, err := store.SaveSession(ctx, "acme", types.BlueprintSessionID, "", ""); err != nil {
		t.Fatalf("failed to save blueprint session: %v", err)
	}
	if _, err := store.SaveArtifact(ctx, "acme", "auth-flow", types.StageIntent, "# Intent\n", "alice"); err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}
	if err := store.SetSessionStatus(ctx, "acme", "auth-flow", types.SessionComplete, "alice"); err != nil {
		t.Fatalf("failed to complete session: %v", err)
	}

	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("failed to compute statistics: %v", err)
	}
	if stats.Projects != 1 || stats.Sessions != 2 || stats.Artifacts != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.ActiveSessions != 1 || stats.CompleteSessions != 1 {
		t.Errorf("unexpected session split: %+v", stats)
	}
}
