package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

const artifactColumns = `id, session_id, stage, content, content_hash, idse_id, fingerprint, created_at, updated_at`

func scanArtifact(scan func(dest ...any) error) (*types.Artifact, error) {
	var a types.Artifact
	err := scan(&a.ID, &a.SessionID, &a.Stage, &a.Content, &a.ContentHash, &a.IDSEID, &a.Fingerprint, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// saveArtifact upserts an artifact by (session, stage). content_hash,
// fingerprint, and updated_at are recomputed on every write; idse_id and
// created_at are fixed at first write. Identical content leaves updated_at
// untouched so hash-gated consumers see a true no-op.
func saveArtifact(ctx context.Context, q dbtx, projectName, sessionID string, stage types.Stage, content string) (*types.Artifact, error) {
	if !types.ValidStage(stage) {
		return nil, fmt.Errorf("%w: unknown stage %q", storage.ErrInvariantViolation, stage)
	}

	sess, err := getSession(ctx, q, projectName, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact requires an existing session: %v", storage.ErrInvariantViolation, err)
	}

	now := time.Now().UTC()
	idseID := types.BuildIDSEID(projectName, sessionID, stage)
	contentHash := types.ComputeContentHash(content)
	fingerprint := types.ComputeFingerprint(content)

	_, err = q.ExecContext(ctx, `
		INSERT INTO artifacts (session_id, stage, content, content_hash, idse_id, fingerprint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, stage) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			fingerprint = excluded.fingerprint,
			updated_at = CASE
				WHEN artifacts.content != excluded.content THEN excluded.updated_at
				ELSE artifacts.updated_at
			END
	`, sess.ID, stage, content, contentHash, idseID, fingerprint, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save artifact %s: %w", idseID, mapError(err))
	}

	return findByIDSEID(ctx, q, idseID)
}

func findByIDSEID(ctx context.Context, q dbtx, idseID string) (*types.Artifact, error) {
	row := q.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE idse_id = ?`, idseID)
	a, err := scanArtifact(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to find artifact %s: %w", idseID, mapError(err))
	}
	return a, nil
}

func getArtifact(ctx context.Context, q dbtx, id int64) (*types.Artifact, error) {
	row := q.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %d: %w", id, mapError(err))
	}
	return a, nil
}

// SaveArtifact upserts an artifact by (session, stage).
func (s *Store) SaveArtifact(ctx context.Context, projectName, sessionID string, stage types.Stage, content, actor string) (*types.Artifact, error) {
	var a *types.Artifact
	err := s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		var err error
		a, err = saveArtifact(ctx, tx.tx, projectName, sessionID, stage, content)
		if err == nil {
			tx.emit("artifact", a.IDSEID, "save", actor)
		}
		return err
	})
	return a, err
}

func (t *sqliteTx) SaveArtifact(ctx context.Context, projectName, sessionID string, stage types.Stage, content, actor string) (*types.Artifact, error) {
	a, err := saveArtifact(ctx, t.tx, projectName, sessionID, stage, content)
	if err == nil {
		t.emit("artifact", a.IDSEID, "save", actor)
	}
	return a, err
}

// LoadArtifact looks up an artifact by its natural key.
func (s *Store) LoadArtifact(ctx context.Context, projectName, sessionID string, stage types.Stage) (*types.Artifact, error) {
	return findByIDSEID(ctx, s.db, types.BuildIDSEID(projectName, sessionID, stage))
}

func (t *sqliteTx) LoadArtifact(ctx context.Context, projectName, sessionID string, stage types.Stage) (*types.Artifact, error) {
	return findByIDSEID(ctx, t.tx, types.BuildIDSEID(projectName, sessionID, stage))
}

// FindByIDSEID looks up an artifact by its stable natural key.
func (s *Store) FindByIDSEID(ctx context.Context, idseID string) (*types.Artifact, error) {
	return findByIDSEID(ctx, s.db, idseID)
}

// GetArtifact looks up an artifact by row ID.
func (s *Store) GetArtifact(ctx context.Context, id int64) (*types.Artifact, error) {
	return getArtifact(ctx, s.db, id)
}

// ListSessionArtifacts returns all artifacts of a session in stage order.
func (s *Store) ListSessionArtifacts(ctx context.Context, projectName, sessionID string) ([]*types.Artifact, error) {
	sess, err := getSession(ctx, s.db, projectName, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts WHERE session_id = ? ORDER BY id
	`, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session artifacts: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	return collectArtifacts(rows)
}

// ListProjectArtifacts returns all artifacts across a project's sessions.
func (s *Store) ListProjectArtifacts(ctx context.Context, projectName string) ([]*types.Artifact, error) {
	project, err := getProject(ctx, s.db, projectName)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+artifactColumnsPrefixed("a")+`
		FROM artifacts a
		JOIN sessions s ON a.session_id = s.id
		WHERE s.project_id = ?
		ORDER BY a.id
	`, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project artifacts: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	return collectArtifacts(rows)
}

func artifactColumnsPrefixed(alias string) string {
	return alias + ".id, " + alias + ".session_id, " + alias + ".stage, " + alias + ".content, " +
		alias + ".content_hash, " + alias + ".idse_id, " + alias + ".fingerprint, " +
		alias + ".created_at, " + alias + ".updated_at"
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectArtifacts(rows rowScanner) ([]*types.Artifact, error) {
	var artifacts []*types.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", mapError(err))
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
