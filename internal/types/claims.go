package types

import "time"

// Classification is the constitutional class of a blueprint claim.
type Classification string

const (
	ClassInvariant     Classification = "invariant"
	ClassBoundary      Classification = "boundary"
	ClassOwnershipRule Classification = "ownership_rule"
	ClassConstraint    Classification = "non_negotiable_constraint"
)

// Constitutional reports whether c is an admissible claim classification.
func Constitutional(c Classification) bool {
	switch c {
	case ClassInvariant, ClassBoundary, ClassOwnershipRule, ClassConstraint:
		return true
	}
	return false
}

// ClaimOrigin distinguishes the two admission paths for a claim.
type ClaimOrigin string

const (
	// OriginDeclared marks an axiom declared from the blueprint session,
	// bypassing convergence gates.
	OriginDeclared ClaimOrigin = "declared"
	// OriginConverged marks a claim proven from multi-session evidence
	// through the promotion gate.
	OriginConverged ClaimOrigin = "converged"
)

// ClaimStatus is the lifecycle status of a claim. Superseded and
// invalidated are terminal.
type ClaimStatus string

const (
	ClaimActive      ClaimStatus = "active"
	ClaimSuperseded  ClaimStatus = "superseded"
	ClaimInvalidated ClaimStatus = "invalidated"
)

// Claim is a constitutional statement about a project. Converged claims
// always reference the promotion record that admitted them; declared claims
// never do.
type Claim struct {
	ID                int64          `json:"id"`
	ProjectID         int64          `json:"project_id"`
	Classification    Classification `json:"classification"`
	ClaimText         string         `json:"claim_text"`
	Origin            ClaimOrigin    `json:"origin"`
	Status            ClaimStatus    `json:"status"`
	PromotionRecordID *int64         `json:"promotion_record_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	SupersededBy      *int64         `json:"superseded_by,omitempty"`
}

// PromotionDecision is the outcome of a promotion gate evaluation.
type PromotionDecision string

const (
	DecisionAllow PromotionDecision = "allow"
	DecisionDeny  PromotionDecision = "deny"
)

// PromotionRecord is the append-only audit row written for every promotion
// gate decision, allow or deny. Rows are never mutated or deleted.
type PromotionRecord struct {
	ID                 int64             `json:"id"`
	ProjectID          int64             `json:"project_id"`
	CandidateClaimText string            `json:"candidate_claim_text"`
	Classification     Classification    `json:"classification"`
	EvidenceHash       string            `json:"evidence_hash"`
	SourceSessions     []string          `json:"source_sessions"`
	SourceStages       []string          `json:"source_stages"`
	FeedbackArtifacts  []string          `json:"feedback_artifacts"`
	Decision           PromotionDecision `json:"decision"`
	Reasons            []string          `json:"reasons,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// ClaimEvent is an append-only lifecycle transition record. Reinforcement
// is recorded as active → active with a non-empty reason.
type ClaimEvent struct {
	ID        int64       `json:"id"`
	ClaimID   int64       `json:"claim_id"`
	OldStatus ClaimStatus `json:"old_status"`
	NewStatus ClaimStatus `json:"new_status"`
	Reason    string      `json:"reason"`
	Actor     string      `json:"actor"`
	CreatedAt time.Time   `json:"created_at"`
}
