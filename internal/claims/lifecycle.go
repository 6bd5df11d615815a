// Package claims owns the blueprint claim lifecycle: the dual admission
// paths (declaration and convergence promotion), the promotion gate, and the
// demotion/reinforcement transitions. All claim table mutations go through
// this package; the storage layer only exposes raw rows.
package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// ErrLifecycleViolation marks an operation that is not admissible from the
// claim's current state, e.g. reinforcing an invalidated claim or declaring
// from a non-blueprint session.
var ErrLifecycleViolation = errors.New("claim lifecycle violation")

// GateDeniedError is returned when the promotion gate denies a candidate.
// Reasons holds the failing gate codes in evaluation order; Record is the
// persisted deny decision.
type GateDeniedError struct {
	Reasons []GateCode
	Record  *types.PromotionRecord
}

func (e *GateDeniedError) Error() string {
	return fmt.Sprintf("promotion denied: %s", strings.Join(gateCodeStrings(e.Reasons), ", "))
}

// Options tunes the promotion gate thresholds.
type Options struct {
	MinSessions                  int
	MinStages                    int
	TemporalStabilityDays        float64
	DuplicateSimilarityThreshold float64
}

// DefaultOptions returns the standard gate thresholds.
func DefaultOptions() Options {
	return Options{
		MinSessions:                  2,
		MinStages:                    2,
		TemporalStabilityDays:        7,
		DuplicateSimilarityThreshold: 0.98,
	}
}

// Lifecycle drives claim admission and transitions over a storage backend.
type Lifecycle struct {
	store storage.Storage
	opts  Options
}

// New builds a Lifecycle. Zero-valued option fields fall back to defaults.
func New(store storage.Storage, opts Options) *Lifecycle {
	def := DefaultOptions()
	if opts.MinSessions == 0 {
		opts.MinSessions = def.MinSessions
	}
	if opts.MinStages == 0 {
		opts.MinStages = def.MinStages
	}
	if opts.TemporalStabilityDays == 0 {
		opts.TemporalStabilityDays = def.TemporalStabilityDays
	}
	if opts.DuplicateSimilarityThreshold == 0 {
		opts.DuplicateSimilarityThreshold = def.DuplicateSimilarityThreshold
	}
	return &Lifecycle{store: store, opts: opts}
}

// DeclareParams describes a founding declaration from the blueprint session.
type DeclareParams struct {
	Project        string
	ClaimText      string
	Classification types.Classification
	SourceSession  string
	SourceStages   []string
	Actor          string
}

// Declare admits an axiom from the blueprint session, bypassing the
// convergence gate. A duplicate active claim_text in the project returns
// storage.ErrConflict.
func (l *Lifecycle) Declare(ctx context.Context, params DeclareParams) (*types.Claim, error) {
	if params.SourceSession != types.BlueprintSessionID {
		return nil, fmt.Errorf("%w: declarations must originate from %s, got %q",
			ErrLifecycleViolation, types.BlueprintSessionID, params.SourceSession)
	}
	if !types.Constitutional(params.Classification) {
		return nil, fmt.Errorf("%w: %q is not a constitutional classification",
			ErrLifecycleViolation, params.Classification)
	}
	if strings.TrimSpace(params.ClaimText) == "" {
		return nil, fmt.Errorf("%w: claim_text is required", ErrLifecycleViolation)
	}

	project, err := l.store.GetProject(ctx, params.Project)
	if err != nil {
		return nil, err
	}

	var claim *types.Claim
	err = l.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		claim, err = tx.InsertClaim(ctx, &types.Claim{
			ProjectID:      project.ID,
			Classification: params.Classification,
			ClaimText:      params.ClaimText,
			Origin:         types.OriginDeclared,
		})
		if err != nil {
			return err
		}

		reason := fmt.Sprintf("Founding declaration by %s", params.Actor)
		if len(params.SourceStages) > 0 {
			reason += fmt.Sprintf(" from %s", strings.Join(params.SourceStages, ", "))
		}
		_, err = tx.InsertClaimEvent(ctx, &types.ClaimEvent{
			ClaimID:   claim.ID,
			OldStatus: "",
			NewStatus: types.ClaimActive,
			Reason:    reason,
			Actor:     params.Actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// PromoteParams describes a convergence promotion candidate and its
// evidence, referenced by idse id.
type PromoteParams struct {
	Project        string
	ClaimText      string
	Classification types.Classification
	EvidenceIDs    []string
	Actor          string
}

// Promote evaluates the candidate against the promotion gate. The decision
// is persisted as a PromotionRecord either way; on allow a converged claim
// row is created referencing it, on deny a *GateDeniedError carries the
// failing codes and the persisted record.
func (l *Lifecycle) Promote(ctx context.Context, params PromoteParams) (*types.Claim, *types.PromotionRecord, error) {
	return l.decide(ctx, params, true)
}

// EvaluatePromotion runs the gate and persists the decision without
// admitting a claim, even on allow. Used for dry-run inspection of a
// candidate's standing.
func (l *Lifecycle) EvaluatePromotion(ctx context.Context, params PromoteParams) (*types.PromotionRecord, []GateCode, error) {
	_, rec, err := l.decide(ctx, params, false)
	var denied *GateDeniedError
	if errors.As(err, &denied) {
		return denied.Record, denied.Reasons, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, nil, nil
}

func (l *Lifecycle) decide(ctx context.Context, params PromoteParams, admit bool) (*types.Claim, *types.PromotionRecord, error) {
	project, err := l.store.GetProject(ctx, params.Project)
	if err != nil {
		return nil, nil, err
	}

	artifacts := make([]*types.Artifact, 0, len(params.EvidenceIDs))
	artifactIDs := make([]int64, 0, len(params.EvidenceIDs))
	for _, id := range params.EvidenceIDs {
		a, err := l.store.FindByIDSEID(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("evidence %s: %w", id, err)
		}
		artifacts = append(artifacts, a)
		artifactIDs = append(artifactIDs, a.ID)
	}

	signals, err := l.store.GetFeedbackSignals(ctx, artifactIDs)
	if err != nil {
		return nil, nil, err
	}
	active, err := l.store.ActiveClaims(ctx, project.ID)
	if err != nil {
		return nil, nil, err
	}

	cand := Candidate{ClaimText: params.ClaimText, Classification: params.Classification}
	set := buildEvidenceSet(artifacts, signals)
	failed := l.evaluateGates(cand, set, active)

	decision := types.DecisionAllow
	if len(failed) > 0 {
		decision = types.DecisionDeny
	}
	record := &types.PromotionRecord{
		ProjectID:          project.ID,
		CandidateClaimText: params.ClaimText,
		Classification:     params.Classification,
		EvidenceHash:       EvidenceHash(set.idseIDs, set.feedbackIDs),
		SourceSessions:     sortedKeys(set.sessions),
		SourceStages:       sortedKeys(set.stages),
		FeedbackArtifacts:  set.feedbackIDs,
		Decision:           decision,
		Reasons:            gateCodeStrings(failed),
	}

	var claim *types.Claim
	err = l.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		record, err = tx.InsertPromotionRecord(ctx, record)
		if err != nil {
			return err
		}
		if decision == types.DecisionDeny || !admit {
			return nil
		}

		claim, err = tx.InsertClaim(ctx, &types.Claim{
			ProjectID:         project.ID,
			Classification:    params.Classification,
			ClaimText:         params.ClaimText,
			Origin:            types.OriginConverged,
			PromotionRecordID: &record.ID,
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertClaimEvent(ctx, &types.ClaimEvent{
			ClaimID:   claim.ID,
			OldStatus: "",
			NewStatus: types.ClaimActive,
			Reason: fmt.Sprintf("Promoted by %s from sessions %s",
				params.Actor, strings.Join(record.SourceSessions, ", ")),
			Actor: params.Actor,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if decision == types.DecisionDeny {
		return nil, nil, &GateDeniedError{Reasons: failed, Record: record}
	}
	return claim, record, nil
}

// Supersede retires an active claim in favor of successorID. Both the
// superseded_by pointer and a lifecycle event are written atomically.
func (l *Lifecycle) Supersede(ctx context.Context, claimID, successorID int64, reason, actor string) error {
	if reason == "" {
		return fmt.Errorf("%w: supersede requires a reason", ErrLifecycleViolation)
	}
	if claimID == successorID {
		return fmt.Errorf("%w: a claim cannot supersede itself", ErrLifecycleViolation)
	}
	return l.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		claim, err := tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if claim.Status != types.ClaimActive {
			return fmt.Errorf("%w: claim %d is %s, only active claims can be superseded",
				ErrLifecycleViolation, claimID, claim.Status)
		}
		if _, err := tx.GetClaim(ctx, successorID); err != nil {
			return fmt.Errorf("successor: %w", err)
		}

		if err := tx.SetClaimStatus(ctx, claimID, types.ClaimSuperseded, &successorID); err != nil {
			return err
		}
		_, err = tx.InsertClaimEvent(ctx, &types.ClaimEvent{
			ClaimID:   claimID,
			OldStatus: types.ClaimActive,
			NewStatus: types.ClaimSuperseded,
			Reason:    reason,
			Actor:     actor,
		})
		return err
	})
}

// Invalidate retires an active claim with no successor.
func (l *Lifecycle) Invalidate(ctx context.Context, claimID int64, reason, actor string) error {
	if reason == "" {
		return fmt.Errorf("%w: invalidate requires a reason", ErrLifecycleViolation)
	}
	return l.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		claim, err := tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if claim.Status != types.ClaimActive {
			return fmt.Errorf("%w: claim %d is %s, only active claims can be invalidated",
				ErrLifecycleViolation, claimID, claim.Status)
		}

		if err := tx.SetClaimStatus(ctx, claimID, types.ClaimInvalidated, nil); err != nil {
			return err
		}
		_, err = tx.InsertClaimEvent(ctx, &types.ClaimEvent{
			ClaimID:   claimID,
			OldStatus: types.ClaimActive,
			NewStatus: types.ClaimInvalidated,
			Reason:    reason,
			Actor:     actor,
		})
		return err
	})
}

// Reinforce records fresh supporting evidence for an active claim as an
// active -> active lifecycle event. Idempotent per (claim, session, stage):
// a repeat reinforcement returns the existing event.
func (l *Lifecycle) Reinforce(ctx context.Context, claimID int64, session string, stage types.Stage, actor string) (*types.ClaimEvent, error) {
	reason := fmt.Sprintf("Reinforced by %s:%s", session, stage)

	var event *types.ClaimEvent
	err := l.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		claim, err := tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if claim.Status != types.ClaimActive {
			return fmt.Errorf("%w: claim %d is %s, only active claims can be reinforced",
				ErrLifecycleViolation, claimID, claim.Status)
		}

		existing, err := tx.FindClaimEvent(ctx, claimID, reason)
		if err == nil {
			event = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		event, err = tx.InsertClaimEvent(ctx, &types.ClaimEvent{
			ClaimID:   claimID,
			OldStatus: types.ClaimActive,
			NewStatus: types.ClaimActive,
			Reason:    reason,
			Actor:     actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ActiveClaims lists the project's active claims, oldest first.
func (l *Lifecycle) ActiveClaims(ctx context.Context, project string) ([]*types.Claim, error) {
	p, err := l.store.GetProject(ctx, project)
	if err != nil {
		return nil, err
	}
	return l.store.ActiveClaims(ctx, p.ID)
}

// Events returns the lifecycle event trail of a claim, oldest first.
func (l *Lifecycle) Events(ctx context.Context, claimID int64) ([]*types.ClaimEvent, error) {
	return l.store.ListClaimEvents(ctx, claimID)
}
