// Package types defines the core data structures for the idse spine.
package types

import (
	"time"
)

// BlueprintSessionID is the reserved session ID for a project's constitutional
// blueprint session. Exactly one session per project carries it.
const BlueprintSessionID = "__blueprint__"

// Stage identifies a pipeline stage within a session.
type Stage string

const (
	StageIntent         Stage = "intent"
	StageContext        Stage = "context"
	StageSpec           Stage = "spec"
	StagePlan           Stage = "plan"
	StageTasks          Stage = "tasks"
	StageImplementation Stage = "implementation"
	StageFeedback       Stage = "feedback"
	StageMetadata       Stage = "metadata"
)

// PipelineStages lists the stages of the artifact pipeline in order.
// StageMetadata is bookkeeping and sits outside the ordered pipeline.
var PipelineStages = []Stage{
	StageIntent,
	StageContext,
	StageSpec,
	StagePlan,
	StageTasks,
	StageImplementation,
	StageFeedback,
}

// StageOrder returns the pipeline position of a stage, or -1 for stages
// outside the ordered pipeline (metadata, unknown).
func StageOrder(s Stage) int {
	for i, stage := range PipelineStages {
		if stage == s {
			return i
		}
	}
	return -1
}

// ValidStage reports whether s is a known artifact stage.
func ValidStage(s Stage) bool {
	return StageOrder(s) >= 0 || s == StageMetadata
}

// SessionType distinguishes the blueprint session from feature sessions.
type SessionType string

const (
	SessionBlueprint SessionType = "blueprint"
	SessionFeature   SessionType = "feature"
)

// SessionStatus is the lifecycle status of a session.
type SessionStatus string

const (
	SessionDraft      SessionStatus = "draft"
	SessionInProgress SessionStatus = "in_progress"
	SessionReview     SessionStatus = "review"
	SessionComplete   SessionStatus = "complete"
	SessionArchived   SessionStatus = "archived"
	SessionSuperseded SessionStatus = "superseded"
)

// ValidSessionStatus reports whether s is a known session status.
func ValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionDraft, SessionInProgress, SessionReview, SessionComplete, SessionArchived, SessionSuperseded:
		return true
	}
	return false
}

// Project is the root of a workspace project tree.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Stack     string    `json:"stack"`
	CreatedAt time.Time `json:"created_at"`
}

// Session groups pipeline artifacts under a project.
type Session struct {
	ID        int64         `json:"id"`
	ProjectID int64         `json:"project_id"`
	SessionID string        `json:"session_id"`
	Type      SessionType   `json:"type"`
	Status    SessionStatus `json:"status"`
	Owner     string        `json:"owner,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Artifact is a stage-typed content blob belonging to a session.
// ContentHash and Fingerprint are recomputed on every write; IDSEID and
// CreatedAt never change after the first write.
type Artifact struct {
	ID          int64     `json:"id"`
	SessionID   int64     `json:"session_id"`
	Stage       Stage     `json:"stage"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	IDSEID      string    `json:"idse_id"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DependencyType classifies a stored artifact dependency edge.
// Only the upstream direction is stored; downstream is derived by query.
type DependencyType string

const DepUpstream DependencyType = "upstream"

// DependencyDirection selects traversal direction for dependency queries.
type DependencyDirection string

const (
	DirectionUpstream   DependencyDirection = "upstream"
	DirectionDownstream DependencyDirection = "downstream"
)

// Dependency is a directed edge between two artifacts.
type Dependency struct {
	ArtifactID  int64          `json:"artifact_id"`
	DependsOnID int64          `json:"depends_on_artifact_id"`
	Type        DependencyType `json:"dependency_type"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SyncMetadata is per-artifact, per-backend sync bookkeeping. A push is
// skippable iff LastPushHash matches the artifact's current content hash and
// RemoteID is cached.
type SyncMetadata struct {
	ArtifactID   int64      `json:"artifact_id"`
	Backend      string     `json:"backend"`
	LastPushHash string     `json:"last_push_hash,omitempty"`
	LastPushAt   *time.Time `json:"last_push_at,omitempty"`
	LastPullHash string     `json:"last_pull_hash,omitempty"`
	LastPullAt   *time.Time `json:"last_pull_at,omitempty"`
	RemoteID     string     `json:"remote_id,omitempty"`
}

// Skippable reports whether a push of an artifact with the given content
// hash can be skipped without any remote call.
func (m *SyncMetadata) Skippable(contentHash string) bool {
	return m != nil && m.RemoteID != "" && m.LastPushHash == contentHash
}

// SyncUpdate is a partial update to a SyncMetadata row. Nil fields are
// preserved; non-nil fields overwrite.
type SyncUpdate struct {
	PushHash *string
	PushAt   *time.Time
	PullHash *string
	PullAt   *time.Time
	RemoteID *string
}

// ComponentType classifies a parsed component.
type ComponentType string

const (
	ComponentProjection     ComponentType = "projection"
	ComponentOperation      ComponentType = "operation"
	ComponentInfrastructure ComponentType = "infrastructure"
	ComponentRouting        ComponentType = "routing"
	ComponentArtifact       ComponentType = "artifact"
)

// Component is parsed from implementation artifacts and enforces the
// artifact → component → primitive chain.
type Component struct {
	ID                int64         `json:"id"`
	Name              string        `json:"name"`
	Type              ComponentType `json:"type"`
	SourceFile        string        `json:"source_file,omitempty"`
	ParentPrimitives  []string      `json:"parent_primitives"`
	LastSeenInSession string        `json:"last_seen_in_session,omitempty"`
	LastUpdatedAt     time.Time     `json:"last_updated_at"`
}

// SessionTag is an unordered key/value annotation on a session. Tags feed
// optional remote properties (layer, run_scope, version, capability).
type SessionTag struct {
	SessionID int64  `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// StageState is the per-stage slice of a session's state blob.
type StageState struct {
	Status      string     `json:"status"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
}

// SessionState is the per-session state blob keyed by stage. The
// authoritative copy lives in the database; file views are regenerated.
type SessionState map[Stage]*StageState

// FeedbackSignalKind classifies a feedback signal attached to an artifact.
type FeedbackSignalKind string

const (
	SignalContradiction FeedbackSignalKind = "contradiction"
	SignalSupport       FeedbackSignalKind = "support"
)

// FeedbackSignal is an artifact-level signal extracted from feedback.
// Contradiction signals block promotion of claims evidenced by the artifact.
type FeedbackSignal struct {
	ID         int64              `json:"id"`
	ArtifactID int64              `json:"artifact_id"`
	Kind       FeedbackSignalKind `json:"kind"`
	Note       string             `json:"note,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// StageResult is the validation outcome for a single stage.
type StageResult struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidationReport is the per-session validation outcome. Validation never
// fails as an operation; it reports.
type ValidationReport struct {
	SessionID string                 `json:"session_id"`
	OK        bool                   `json:"ok"`
	PerStage  map[Stage]*StageResult `json:"per_stage"`
}

// Statistics summarizes spine contents for status displays.
type Statistics struct {
	Projects         int `json:"projects"`
	Sessions         int `json:"sessions"`
	ActiveSessions   int `json:"active_sessions"`
	CompleteSessions int `json:"complete_sessions"`
	Artifacts        int `json:"artifacts"`
	ActiveClaims     int `json:"active_claims"`
	DeclaredClaims   int `json:"declared_claims"`
	ConvergedClaims  int `json:"converged_claims"`
	PromotionRecords int `json:"promotion_records"`
	Components       int `json:"components"`
}
