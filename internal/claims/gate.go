package claims

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/idse/internal/types"
)

// GateCode identifies a promotion gate. On denial the failing codes are
// reported in the fixed evaluation order below.
type GateCode string

const (
	GateNotConstitutional    GateCode = "NOT_CONSTITUTIONAL"
	GateSessionDiversity     GateCode = "INSUFFICIENT_SESSION_DIVERSITY"
	GateStageDiversity       GateCode = "INSUFFICIENT_STAGE_DIVERSITY"
	GateTemporalStability    GateCode = "INSUFFICIENT_TEMPORAL_STABILITY"
	GateNoFeedbackEvidence   GateCode = "NO_FEEDBACK_EVIDENCE"
	GateContradictedFeedback GateCode = "CONTRADICTED_BY_FEEDBACK"
	GateDuplicateStatement   GateCode = "DUPLICATE_STATEMENT"
)

// Candidate is a claim proposed for convergence promotion.
type Candidate struct {
	ClaimText      string
	Classification types.Classification
}

// evidenceSet is the pre-digested view of the evidence artifacts a gate
// evaluation runs against.
type evidenceSet struct {
	idseIDs      []string
	sessions     map[string]bool
	stages       map[string]bool
	feedbackIDs  []string // idse ids of feedback-stage evidence
	earliest     time.Time
	latest       time.Time
	contradicted bool
}

func buildEvidenceSet(artifacts []*types.Artifact, signals []*types.FeedbackSignal) *evidenceSet {
	set := &evidenceSet{
		sessions: make(map[string]bool),
		stages:   make(map[string]bool),
	}
	for _, a := range artifacts {
		set.idseIDs = append(set.idseIDs, a.IDSEID)
		if _, session, stage, ok := types.ParseIDSEID(a.IDSEID); ok {
			set.sessions[session] = true
			set.stages[string(stage)] = true
		}
		if a.Stage == types.StageFeedback {
			set.feedbackIDs = append(set.feedbackIDs, a.IDSEID)
		}
		if set.earliest.IsZero() || a.UpdatedAt.Before(set.earliest) {
			set.earliest = a.UpdatedAt
		}
		if a.UpdatedAt.After(set.latest) {
			set.latest = a.UpdatedAt
		}
	}
	for _, sig := range signals {
		if sig.Kind == types.SignalContradiction {
			set.contradicted = true
		}
	}
	return set
}

// evaluateGates runs every gate in order and returns the failing codes,
// ordered. An empty result means the candidate is admissible.
func (l *Lifecycle) evaluateGates(cand Candidate, set *evidenceSet, active []*types.Claim) []GateCode {
	var failed []GateCode

	if !types.Constitutional(cand.Classification) {
		failed = append(failed, GateNotConstitutional)
	}
	if len(set.sessions) < l.opts.MinSessions {
		failed = append(failed, GateSessionDiversity)
	}
	if len(set.stages) < l.opts.MinStages {
		failed = append(failed, GateStageDiversity)
	}
	stability := time.Duration(l.opts.TemporalStabilityDays * 24 * float64(time.Hour))
	if set.latest.Sub(set.earliest) < stability {
		failed = append(failed, GateTemporalStability)
	}
	if len(set.feedbackIDs) == 0 {
		failed = append(failed, GateNoFeedbackEvidence)
	}
	if set.contradicted {
		failed = append(failed, GateContradictedFeedback)
	}
	for _, c := range active {
		if Similarity(cand.ClaimText, c.ClaimText) >= l.opts.DuplicateSimilarityThreshold {
			failed = append(failed, GateDuplicateStatement)
			break
		}
	}

	return failed
}

// EvidenceHash computes the stable digest persisted with every promotion
// decision: SHA256 over the sorted evidence idse ids followed by the sorted
// feedback artifact ids. Input slices are not mutated.
func EvidenceHash(idseIDs, feedbackIDs []string) string {
	ids := append([]string(nil), idseIDs...)
	sort.Strings(ids)
	feedback := append([]string(nil), feedbackIDs...)
	sort.Strings(feedback)

	data := strings.Join(ids, "\n")
	if len(feedback) > 0 {
		data += "\n" + strings.Join(feedback, "\n")
	}
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func gateCodeStrings(codes []GateCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
