package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// DefaultTraversalDepth bounds dependency traversals. Wider cycles are
// permitted structurally, so every traversal carries a depth cap.
const DefaultTraversalDepth = 50

// saveDependency records a directed upstream edge. Idempotent on the pair.
// Self-edges and direct two-node cycles are rejected.
func saveDependency(ctx context.Context, q dbtx, artifactID, dependsOnID int64, actor string) error {
	if artifactID == dependsOnID {
		return fmt.Errorf("%w: artifact %d cannot depend on itself", storage.ErrInvariantViolation, artifactID)
	}

	// Both endpoints must exist; the FK alone gives a less useful error.
	if _, err := getArtifact(ctx, q, artifactID); err != nil {
		return err
	}
	if _, err := getArtifact(ctx, q, dependsOnID); err != nil {
		return err
	}

	var reverse int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM artifact_dependencies
		WHERE artifact_id = ? AND depends_on_artifact_id = ?
	`, dependsOnID, artifactID).Scan(&reverse)
	if err != nil {
		return fmt.Errorf("failed to check reverse edge: %w", mapError(err))
	}
	if reverse > 0 {
		return fmt.Errorf("%w: dependency %d -> %d would close a two-node cycle", storage.ErrInvariantViolation, artifactID, dependsOnID)
	}

	_, err = q.ExecContext(ctx, `
		INSERT OR IGNORE INTO artifact_dependencies (artifact_id, depends_on_artifact_id, dependency_type, created_at, created_by)
		VALUES (?, ?, ?, ?, ?)
	`, artifactID, dependsOnID, types.DepUpstream, time.Now().UTC(), actor)
	if err != nil {
		return fmt.Errorf("failed to save dependency: %w", mapError(err))
	}
	return nil
}

// replaceUpstreamDependencies swaps the full upstream edge set of an
// artifact (delete-then-insert) so pull reconciliation is deterministic.
func replaceUpstreamDependencies(ctx context.Context, q dbtx, artifactID int64, dependsOn []int64, actor string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM artifact_dependencies WHERE artifact_id = ?`, artifactID); err != nil {
		return fmt.Errorf("failed to clear dependencies: %w", mapError(err))
	}
	for _, id := range dependsOn {
		if err := saveDependency(ctx, q, artifactID, id, actor); err != nil {
			return err
		}
	}
	return nil
}

// SaveDependency records an upstream dependency edge between artifacts.
func (s *Store) SaveDependency(ctx context.Context, artifactID, dependsOnID int64, actor string) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		if err := saveDependency(ctx, tx.tx, artifactID, dependsOnID, actor); err != nil {
			return err
		}
		tx.emit("dependency", strconv.FormatInt(artifactID, 10)+"->"+strconv.FormatInt(dependsOnID, 10), "save", actor)
		return nil
	})
}

func (t *sqliteTx) SaveDependency(ctx context.Context, artifactID, dependsOnID int64, actor string) error {
	if err := saveDependency(ctx, t.tx, artifactID, dependsOnID, actor); err != nil {
		return err
	}
	t.emit("dependency", strconv.FormatInt(artifactID, 10)+"->"+strconv.FormatInt(dependsOnID, 10), "save", actor)
	return nil
}

// ReplaceUpstreamDependencies swaps an artifact's upstream edge set.
func (s *Store) ReplaceUpstreamDependencies(ctx context.Context, artifactID int64, dependsOn []int64, actor string) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		if err := replaceUpstreamDependencies(ctx, tx.tx, artifactID, dependsOn, actor); err != nil {
			return err
		}
		tx.emit("dependency", strconv.FormatInt(artifactID, 10), "replace", actor)
		return nil
	})
}

func (t *sqliteTx) ReplaceUpstreamDependencies(ctx context.Context, artifactID int64, dependsOn []int64, actor string) error {
	if err := replaceUpstreamDependencies(ctx, t.tx, artifactID, dependsOn, actor); err != nil {
		return err
	}
	t.emit("dependency", strconv.FormatInt(artifactID, 10), "replace", actor)
	return nil
}

// GetDependencies returns artifacts reachable from artifactID in the given
// direction up to maxDepth hops (depth <= 0 uses the default bound).
// Traversal is cycle-safe: each artifact appears at most once.
func (s *Store) GetDependencies(ctx context.Context, artifactID int64, direction types.DependencyDirection, maxDepth int) ([]*types.Artifact, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultTraversalDepth
	}

	from, to := "artifact_id", "depends_on_artifact_id"
	if direction == types.DirectionDownstream {
		from, to = to, from
	} else if direction != types.DirectionUpstream {
		return nil, fmt.Errorf("%w: unknown dependency direction %q", storage.ErrInvariantViolation, direction)
	}

	if _, err := getArtifact(ctx, s.db, artifactID); err != nil {
		return nil, err
	}

	// #nosec G201 - column names are fixed strings, not user input
	query := fmt.Sprintf(`
		WITH RECURSIVE reachable(id, depth) AS (
			SELECT d.%[2]s, 1 FROM artifact_dependencies d WHERE d.%[1]s = ?
			UNION
			SELECT d.%[2]s, r.depth + 1
			FROM artifact_dependencies d
			JOIN reachable r ON d.%[1]s = r.id
			WHERE r.depth < ?
		)
		SELECT `+artifactColumnsPrefixed("a")+`
		FROM artifacts a
		JOIN reachable r ON a.id = r.id
		ORDER BY a.id
	`, from, to)

	rows, err := s.db.QueryContext(ctx, query, artifactID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to traverse dependencies: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	return collectArtifacts(rows)
}

// GetDependencyRecords returns the raw upstream edges of an artifact.
func (s *Store) GetDependencyRecords(ctx context.Context, artifactID int64) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artifact_id, depends_on_artifact_id, dependency_type, created_at
		FROM artifact_dependencies WHERE artifact_id = ? ORDER BY depends_on_artifact_id
	`, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency records: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var deps []*types.Dependency
	for rows.Next() {
		var d types.Dependency
		if err := rows.Scan(&d.ArtifactID, &d.DependsOnID, &d.Type, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", mapError(err))
		}
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}
