// Package storage defines the interface for spine storage backends.
package storage

import (
	"context"
	"database/sql"

	"github.com/untoldecay/idse/internal/types"
)

// Transaction exposes the subset of Storage write operations that execute
// within a single database transaction. This enables atomic workflows where
// multiple operations must either all succeed or all fail (e.g., a promotion
// gate decision that writes a promotion record, a claim row, and a lifecycle
// event together).
//
// Transaction semantics:
//   - All operations within the transaction share the same connection
//   - Changes are not visible to other connections until commit
//   - If the callback returns an error or panics, the transaction rolls back
//   - On successful return from the callback, the transaction commits
//   - SQLite uses BEGIN IMMEDIATE to acquire the write lock early, which
//     serializes concurrent writers without deadlocking
type Transaction interface {
	// Projects and sessions
	SaveProject(ctx context.Context, name, stack string) (*types.Project, error)
	SaveSession(ctx context.Context, projectName, sessionID string, typ types.SessionType, owner string) (*types.Session, error)
	SetSessionStatus(ctx context.Context, projectName, sessionID string, status types.SessionStatus, actor string) error

	// Artifacts
	SaveArtifact(ctx context.Context, projectName, sessionID string, stage types.Stage, content, actor string) (*types.Artifact, error)
	LoadArtifact(ctx context.Context, projectName, sessionID string, stage types.Stage) (*types.Artifact, error)

	// Dependencies
	SaveDependency(ctx context.Context, artifactID, dependsOnID int64, actor string) error
	ReplaceUpstreamDependencies(ctx context.Context, artifactID int64, dependsOn []int64, actor string) error

	// Sync metadata
	SaveSyncMetadata(ctx context.Context, artifactID int64, backend string, upd types.SyncUpdate) error
	GetSyncMetadata(ctx context.Context, artifactID int64, backend string) (*types.SyncMetadata, error)

	// Claim rows. These are raw row operations: all lifecycle rules
	// (gates, transitions, audit events) live in the claims package, which
	// is the only permitted caller for mutations.
	InsertClaim(ctx context.Context, claim *types.Claim) (*types.Claim, error)
	GetClaim(ctx context.Context, id int64) (*types.Claim, error)
	ActiveClaims(ctx context.Context, projectID int64) ([]*types.Claim, error)
	SetClaimStatus(ctx context.Context, id int64, status types.ClaimStatus, supersededBy *int64) error
	InsertPromotionRecord(ctx context.Context, rec *types.PromotionRecord) (*types.PromotionRecord, error)
	InsertClaimEvent(ctx context.Context, ev *types.ClaimEvent) (*types.ClaimEvent, error)
	FindClaimEvent(ctx context.Context, claimID int64, reason string) (*types.ClaimEvent, error)

	// Session state (for read-your-writes within completion gating)
	SaveSessionState(ctx context.Context, projectName, sessionID string, state types.SessionState) error
}

// Storage defines the interface for spine storage backends.
type Storage interface {
	Transaction

	// Projects
	GetProject(ctx context.Context, name string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)

	// Sessions
	GetSession(ctx context.Context, projectName, sessionID string) (*types.Session, error)
	ListSessions(ctx context.Context, projectName string) ([]*types.Session, error)

	// Artifacts
	FindByIDSEID(ctx context.Context, idseID string) (*types.Artifact, error)
	GetArtifact(ctx context.Context, id int64) (*types.Artifact, error)
	ListSessionArtifacts(ctx context.Context, projectName, sessionID string) ([]*types.Artifact, error)
	ListProjectArtifacts(ctx context.Context, projectName string) ([]*types.Artifact, error)

	// Dependencies. Traversal is depth-bounded; depth <= 1 returns direct
	// edges only.
	GetDependencies(ctx context.Context, artifactID int64, direction types.DependencyDirection, maxDepth int) ([]*types.Artifact, error)
	GetDependencyRecords(ctx context.Context, artifactID int64) ([]*types.Dependency, error)

	// Sync metadata reverse lookup (remote_id -> artifact)
	FindArtifactByRemoteID(ctx context.Context, backend, remoteID string) (*types.Artifact, error)

	// Session tags
	SetSessionTag(ctx context.Context, projectName, sessionID, key, value string) error
	GetSessionTags(ctx context.Context, projectName, sessionID string) (map[string]string, error)

	// Session state
	GetSessionState(ctx context.Context, projectName, sessionID string) (types.SessionState, error)

	// Components
	SaveComponent(ctx context.Context, comp *types.Component, actor string) (*types.Component, error)
	GetComponent(ctx context.Context, name string) (*types.Component, error)
	ListComponents(ctx context.Context) ([]*types.Component, error)

	// Feedback signals
	AddFeedbackSignal(ctx context.Context, artifactID int64, kind types.FeedbackSignalKind, note string) error
	GetFeedbackSignals(ctx context.Context, artifactIDs []int64) ([]*types.FeedbackSignal, error)

	// Claim reads
	ListClaims(ctx context.Context, projectID int64) ([]*types.Claim, error)
	ListPromotionRecords(ctx context.Context, projectID int64) ([]*types.PromotionRecord, error)
	ListClaimEvents(ctx context.Context, claimID int64) ([]*types.ClaimEvent, error)

	// Statistics returns aggregate counts for status displays.
	Statistics(ctx context.Context) (*types.Statistics, error)

	// Verify runs the integrity pragma plus spine invariant sweeps.
	Verify(ctx context.Context) error

	// RunInTransaction executes fn within a single transaction. The
	// context handed to fn carries the transaction; nested calls made
	// with it reuse the outermost transaction.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error

	// Lifecycle
	Close() error
	Path() string

	// UnderlyingDB returns the underlying *sql.DB connection. Provided for
	// extensions that create their own tables in the same database.
	// Direct access bypasses the storage layer; use with caution.
	UnderlyingDB() *sql.DB
}

// Config holds database configuration.
type Config struct {
	Backend string // "sqlite" is the only core backend
	Path    string // database file path
}
