package claims

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/storage/sqlite"
	"github.com/untoldecay/idse/internal/types"
)

func newTestLifecycle(t *testing.T) (*Lifecycle, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "idse.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store, DefaultOptions()), store
}

func seedProject(t *testing.T, store storage.Storage, name string, sessions ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.SaveProject(ctx, name, "go"); err != nil {
		t.Fatalf("failed to save project: %v", err)
	}
	if _, err := store.SaveSession(ctx, name, types.BlueprintSessionID, types.SessionBlueprint, "tester"); err != nil {
		t.Fatalf("failed to save blueprint session: %v", err)
	}
	for _, s := range sessions {
		if _, err := store.SaveSession(ctx, name, s, types.SessionFeature, "tester"); err != nil {
			t.Fatalf("failed to save session %s: %v", s, err)
		}
	}
}

func seedArtifact(t *testing.T, store storage.Storage, project, session string, stage types.Stage, content string) *types.Artifact {
	t.Helper()
	a, err := store.SaveArtifact(context.Background(), project, session, stage, content, "tester")
	if err != nil {
		t.Fatalf("failed to save artifact %s/%s/%s: %v", project, session, stage, err)
	}
	return a
}

// setArtifactUpdatedAt pins an artifact's updated_at so gate windows can be
// exercised at exact boundaries without waiting.
func setArtifactUpdatedAt(t *testing.T, store storage.Storage, artifactID int64, ts time.Time) {
	t.Helper()
	_, err := store.UnderlyingDB().Exec(
		`UPDATE artifacts SET updated_at = ? WHERE id = ?`, ts, artifactID)
	if err != nil {
		t.Fatalf("failed to set artifact updated_at: %v", err)
	}
}

// backdateArtifact shifts an artifact's updated_at into the past.
func backdateArtifact(t *testing.T, store storage.Storage, artifactID int64, age time.Duration) {
	t.Helper()
	setArtifactUpdatedAt(t, store, artifactID, time.Now().UTC().Add(-age))
}

func TestDeclareBootstrap(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	seedProject(t, store, "orch")

	params := DeclareParams{
		Project:        "orch",
		ClaimText:      "Embedded relational store is authoritative.",
		Classification: types.ClassInvariant,
		SourceSession:  types.BlueprintSessionID,
		SourceStages:   []string{"intent", "spec"},
		Actor:          "architect",
	}
	claim, err := lc.Declare(ctx, params)
	if err != nil {
		t.Fatalf("declare failed: %v", err)
	}
	if claim.Origin != types.OriginDeclared {
		t.Errorf("expected origin declared, got %s", claim.Origin)
	}
	if claim.Status != types.ClaimActive {
		t.Errorf("expected status active, got %s", claim.Status)
	}
	if claim.PromotionRecordID != nil {
		t.Errorf("declared claim must not reference a promotion record, got %d", *claim.PromotionRecordID)
	}

	events, err := lc.Events(ctx, claim.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 lifecycle event, got %d", len(events))
	}
	if events[0].OldStatus != "" || events[0].NewStatus != types.ClaimActive {
		t.Errorf("expected \"\" -> active event, got %q -> %q", events[0].OldStatus, events[0].NewStatus)
	}
	if !strings.Contains(events[0].Reason, "Founding declaration") {
		t.Errorf("unexpected event reason %q", events[0].Reason)
	}

	// Second identical declaration hits the active-text uniqueness index.
	if _, err := lc.Declare(ctx, params); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate declaration, got %v", err)
	}
}

func TestDeclareRejectsNonBlueprintSession(t *testing.T) {
	lc, store := newTestLifecycle(t)
	seedProject(t, store, "orch", "s1")

	_, err := lc.Declare(context.Background(), DeclareParams{
		Project:        "orch",
		ClaimText:      "A claim.",
		Classification: types.ClassInvariant,
		SourceSession:  "s1",
		Actor:          "architect",
	})
	if !errors.Is(err, ErrLifecycleViolation) {
		t.Errorf("expected ErrLifecycleViolation, got %v", err)
	}
}

func TestDeclareRejectsNonConstitutionalClass(t *testing.T) {
	lc, store := newTestLifecycle(t)
	seedProject(t, store, "orch")

	_, err := lc.Declare(context.Background(), DeclareParams{
		Project:        "orch",
		ClaimText:      "A claim.",
		Classification: "preference",
		SourceSession:  types.BlueprintSessionID,
		Actor:          "architect",
	})
	if !errors.Is(err, ErrLifecycleViolation) {
		t.Errorf("expected ErrLifecycleViolation, got %v", err)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want func(float64) bool
	}{
		{"identical", "The store is authoritative.", "The store is authoritative.", func(s float64) bool { return s > 0.999 }},
		{"reordered", "the store is authoritative", "authoritative is the store", func(s float64) bool { return s > 0.999 }},
		{"disjoint", "alpha beta gamma", "delta epsilon zeta", func(s float64) bool { return s == 0 }},
		{"partial", "alpha beta gamma delta", "alpha beta something else", func(s float64) bool { return s > 0.3 && s < 0.7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); !tt.want(got) {
				t.Errorf("Similarity(%q, %q) = %f", tt.a, tt.b, got)
			}
		})
	}
}

func TestEvaluatePromotionDeniesSingleSession(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	seedProject(t, store, "orch", "s1")

	a1 := seedArtifact(t, store, "orch", "s1", types.StageSpec, "spec content")
	a2 := seedArtifact(t, store, "orch", "s1", types.StagePlan, "plan content")

	rec, reasons, err := lc.EvaluatePromotion(ctx, PromoteParams{
		Project:        "orch",
		ClaimText:      "A claim.",
		Classification: types.ClassInvariant,
		EvidenceIDs:    []string{a1.IDSEID, a2.IDSEID},
		Actor:          "architect",
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if rec.Decision != types.DecisionDeny {
		t.Fatalf("expected deny, got %s", rec.Decision)
	}
	if len(reasons) == 0 || reasons[0] != GateSessionDiversity {
		t.Errorf("expected first failing code %s, got %v", GateSessionDiversity, reasons)
	}
	if want := EvidenceHash([]string{a1.IDSEID, a2.IDSEID}, nil); rec.EvidenceHash != want {
		t.Errorf("evidence hash mismatch: got %s, want %s", rec.EvidenceHash, want)
	}

	// The deny decision is persisted.
	project, err := store.GetProject(ctx, "orch")
	if err != nil {
		t.Fatalf("failed to get project: %v", err)
	}
	records, err := store.ListPromotionRecords(ctx, project.ID)
	if err != nil {
		t.Fatalf("failed to list promotion records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 promotion record, got %d", len(records))
	}
	if records[0].Decision != types.DecisionDeny {
		t.Errorf("persisted record is %s, want deny", records[0].Decision)
	}
}

func promoteFixture(t *testing.T, store storage.Storage) []string {
	t.Helper()
	seedProject(t, store, "orch", "s1", "s2")
	a1 := seedArtifact(t, store, "orch", "s1", types.StageSpec, "spec evidence")
	a2 := seedArtifact(t, store, "orch", "s2", types.StageFeedback, "feedback evidence")
	backdateArtifact(t, store, a1.ID, 8*24*time.Hour)
	return []string{a1.IDSEID, a2.IDSEID}
}

func TestPromoteAllowed(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	evidence := promoteFixture(t, store)

	claim, rec, err := lc.Promote(ctx, PromoteParams{
		Project:        "orch",
		ClaimText:      "Stage transitions are append-only.",
		Classification: types.ClassInvariant,
		EvidenceIDs:    evidence,
		Actor:          "architect",
	})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if claim.Origin != types.OriginConverged {
		t.Errorf("expected origin converged, got %s", claim.Origin)
	}
	if claim.PromotionRecordID == nil || *claim.PromotionRecordID != rec.ID {
		t.Errorf("claim does not reference its promotion record: %v vs %d", claim.PromotionRecordID, rec.ID)
	}
	if rec.Decision != types.DecisionAllow {
		t.Errorf("expected allow, got %s", rec.Decision)
	}
	if len(rec.SourceSessions) != 2 {
		t.Errorf("expected 2 source sessions, got %v", rec.SourceSessions)
	}
	if len(rec.FeedbackArtifacts) != 1 {
		t.Errorf("expected 1 feedback artifact, got %v", rec.FeedbackArtifacts)
	}

	events, err := lc.Events(ctx, claim.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 1 || events[0].NewStatus != types.ClaimActive {
		t.Errorf("expected a single admission event, got %v", events)
	}
}

func TestPromoteDeniedByContradiction(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	evidence := promoteFixture(t, store)

	feedback, err := store.FindByIDSEID(ctx, evidence[1])
	if err != nil {
		t.Fatalf("failed to find feedback artifact: %v", err)
	}
	if err := store.AddFeedbackSignal(ctx, feedback.ID, types.SignalContradiction, "observed regression"); err != nil {
		t.Fatalf("failed to add signal: %v", err)
	}

	_, _, err = lc.Promote(ctx, PromoteParams{
		Project:        "orch",
		ClaimText:      "Stage transitions are append-only.",
		Classification: types.ClassInvariant,
		EvidenceIDs:    evidence,
		Actor:          "architect",
	})
	var denied *GateDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected GateDeniedError, got %v", err)
	}
	if len(denied.Reasons) != 1 || denied.Reasons[0] != GateContradictedFeedback {
		t.Errorf("expected [%s], got %v", GateContradictedFeedback, denied.Reasons)
	}
	if denied.Record == nil || denied.Record.Decision != types.DecisionDeny {
		t.Errorf("denied error must carry the persisted deny record")
	}
}

func TestPromoteDeniedDuplicateStatement(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	evidence := promoteFixture(t, store)

	text := "Stage transitions are append-only."
	if _, err := lc.Declare(ctx, DeclareParams{
		Project:        "orch",
		ClaimText:      text,
		Classification: types.ClassInvariant,
		SourceSession:  types.BlueprintSessionID,
		Actor:          "architect",
	}); err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	// Token-reordered rephrasing is still a duplicate under the multiset
	// metric.
	_, _, err := lc.Promote(ctx, PromoteParams{
		Project:        "orch",
		ClaimText:      "Append-only are stage transitions.",
		Classification: types.ClassInvariant,
		EvidenceIDs:    evidence,
		Actor:          "architect",
	})
	var denied *GateDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected GateDeniedError, got %v", err)
	}
	if len(denied.Reasons) != 1 || denied.Reasons[0] != GateDuplicateStatement {
		t.Errorf("expected [%s], got %v", GateDuplicateStatement, denied.Reasons)
	}
}

func TestTemporalStabilityExactWindow(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	seedProject(t, store, "orch", "s1", "s2")
	a1 := seedArtifact(t, store, "orch", "s1", types.StageSpec, "spec evidence")
	a2 := seedArtifact(t, store, "orch", "s2", types.StageFeedback, "feedback evidence")

	latest := time.Now().UTC().Truncate(time.Second)
	window := 7 * 24 * time.Hour
	setArtifactUpdatedAt(t, store, a2.ID, latest)

	params := PromoteParams{
		Project:        "orch",
		ClaimText:      "Evidence spans the stability window.",
		Classification: types.ClassInvariant,
		EvidenceIDs:    []string{a1.IDSEID, a2.IDSEID},
		Actor:          "architect",
	}

	// One second short of the window denies, and only on temporal grounds.
	setArtifactUpdatedAt(t, store, a1.ID, latest.Add(-window+time.Second))
	rec, reasons, err := lc.EvaluatePromotion(ctx, params)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if rec.Decision != types.DecisionDeny || len(reasons) != 1 || reasons[0] != GateTemporalStability {
		t.Fatalf("expected temporal-only denial, got %s %v", rec.Decision, reasons)
	}

	// A spread of exactly the window is stable.
	setArtifactUpdatedAt(t, store, a1.ID, latest.Add(-window))
	_, rec, err = lc.Promote(ctx, params)
	if err != nil {
		t.Fatalf("promote at exact window failed: %v", err)
	}
	if rec.Decision != types.DecisionAllow {
		t.Errorf("expected allow, got %s", rec.Decision)
	}
}

func TestDuplicateThresholdBoundary(t *testing.T) {
	_, store := newTestLifecycle(t)
	ctx := context.Background()
	evidence := promoteFixture(t, store)

	active := "Writes reach the database through the storage layer."
	candidate := "Writes reach the database through the service layer."
	sim := Similarity(active, candidate)
	if sim <= 0 || sim >= 1 {
		t.Fatalf("fixture texts must be partially similar, got %f", sim)
	}

	strict := New(store, Options{DuplicateSimilarityThreshold: sim})
	if _, err := strict.Declare(ctx, DeclareParams{
		Project: "orch", ClaimText: active, Classification: types.ClassInvariant,
		SourceSession: types.BlueprintSessionID, Actor: "architect",
	}); err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	params := PromoteParams{
		Project:        "orch",
		ClaimText:      candidate,
		Classification: types.ClassInvariant,
		EvidenceIDs:    evidence,
		Actor:          "architect",
	}

	// Similarity exactly at the threshold denies.
	_, _, err := strict.Promote(ctx, params)
	var denied *GateDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected GateDeniedError, got %v", err)
	}
	if len(denied.Reasons) != 1 || denied.Reasons[0] != GateDuplicateStatement {
		t.Errorf("expected [%s], got %v", GateDuplicateStatement, denied.Reasons)
	}

	// The smallest threshold above the measured similarity admits.
	lenient := New(store, Options{DuplicateSimilarityThreshold: math.Nextafter(sim, 1)})
	if _, _, err := lenient.Promote(ctx, params); err != nil {
		t.Fatalf("promote below the threshold failed: %v", err)
	}
}

func TestGateFailureOrdering(t *testing.T) {
	lc, store := newTestLifecycle(t)
	seedProject(t, store, "orch", "s1")
	a1 := seedArtifact(t, store, "orch", "s1", types.StageSpec, "spec content")

	// Non-constitutional class, one session, one stage, no span, no
	// feedback: five gates fail, in declared order.
	_, _, err := lc.Promote(context.Background(), PromoteParams{
		Project:        "orch",
		ClaimText:      "A claim.",
		Classification: "preference",
		EvidenceIDs:    []string{a1.IDSEID},
		Actor:          "architect",
	})
	var denied *GateDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected GateDeniedError, got %v", err)
	}
	want := []GateCode{
		GateNotConstitutional,
		GateSessionDiversity,
		GateStageDiversity,
		GateTemporalStability,
		GateNoFeedbackEvidence,
	}
	if len(denied.Reasons) != len(want) {
		t.Fatalf("expected %d failing codes, got %v", len(want), denied.Reasons)
	}
	for i, code := range want {
		if denied.Reasons[i] != code {
			t.Errorf("reason %d: got %s, want %s", i, denied.Reasons[i], code)
		}
	}
}

func TestSupersede(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	seedProject(t, store, "orch")

	old, err := lc.Declare(ctx, DeclareParams{
		Project: "orch", ClaimText: "Old rule.", Classification: types.ClassBoundary,
		SourceSession: types.BlueprintSessionID, Actor: "architect",
	})
	if err != nil {
		t.Fatalf("declare failed: %v", err)
	}
	successor, err := lc.Declare(ctx, DeclareParams{
		Project: "orch", ClaimText: "New rule.", Classification: types.ClassBoundary,
		SourceSession: types.BlueprintSessionID, Actor: "architect",
	})
	if err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	if err := lc.Supersede(ctx, old.ID, successor.ID, "refined by new rule", "architect"); err != nil {
		t.Fatalf("supersede failed: %v", err)
	}

	got, err := store.GetClaim(ctx, old.ID)
	if err != nil {
		t.Fatalf("failed to get claim: %v", err)
	}
	if got.Status != types.ClaimSuperseded {
		t.Errorf("expected superseded, got %s", got.Status)
	}
	if got.SupersededBy == nil || *got.SupersededBy != successor.ID {
		t.Errorf("superseded_by not set to %d: %v", successor.ID, got.SupersededBy)
	}

	// Terminal: no further transitions.
	if err := lc.Invalidate(ctx, old.ID, "too late", "architect"); !errors.Is(err, ErrLifecycleViolation) {
		t.Errorf("expected ErrLifecycleViolation on terminal claim, got %v", err)
	}
	if _, err := lc.Reinforce(ctx, old.ID, "s1", types.StageFeedback, "architect"); !errors.Is(err, ErrLifecycleViolation) {
		t.Errorf("expected ErrLifecycleViolation on terminal claim, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	seedProject(t, store, "orch")

	claim, err := lc.Declare(ctx, DeclareParams{
		Project: "orch", ClaimText: "Wrong rule.", Classification: types.ClassInvariant,
		SourceSession: types.BlueprintSessionID, Actor: "architect",
	})
	if err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	if err := lc.Invalidate(ctx, claim.ID, "", "architect"); !errors.Is(err, ErrLifecycleViolation) {
		t.Errorf("expected ErrLifecycleViolation on empty reason, got %v", err)
	}
	if err := lc.Invalidate(ctx, claim.ID, "disproved in practice", "architect"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	got, err := store.GetClaim(ctx, claim.ID)
	if err != nil {
		t.Fatalf("failed to get claim: %v", err)
	}
	if got.Status != types.ClaimInvalidated {
		t.Errorf("expected invalidated, got %s", got.Status)
	}
	events, err := lc.Events(ctx, claim.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.OldStatus != types.ClaimActive || last.NewStatus != types.ClaimInvalidated {
		t.Errorf("expected active -> invalidated, got %s -> %s", last.OldStatus, last.NewStatus)
	}
}

func TestReinforceIdempotent(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()
	seedProject(t, store, "orch", "s2")

	claim, err := lc.Declare(ctx, DeclareParams{
		Project: "orch", ClaimText: "A rule.", Classification: types.ClassInvariant,
		SourceSession: types.BlueprintSessionID, Actor: "architect",
	})
	if err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	first, err := lc.Reinforce(ctx, claim.ID, "s2", types.StageFeedback, "reviewer")
	if err != nil {
		t.Fatalf("reinforce failed: %v", err)
	}
	if first.OldStatus != types.ClaimActive || first.NewStatus != types.ClaimActive {
		t.Errorf("expected active -> active, got %s -> %s", first.OldStatus, first.NewStatus)
	}
	if !strings.Contains(first.Reason, "Reinforced by s2:feedback") {
		t.Errorf("unexpected reason %q", first.Reason)
	}

	second, err := lc.Reinforce(ctx, claim.ID, "s2", types.StageFeedback, "reviewer")
	if err != nil {
		t.Fatalf("repeat reinforce failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("repeat reinforcement created a new event: %d vs %d", second.ID, first.ID)
	}

	events, err := lc.Events(ctx, claim.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected declaration + one reinforcement, got %d events", len(events))
	}
}
