package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// saveSyncMetadata partially upserts a sync_metadata row: only the non-nil
// fields of upd are written, everything else is preserved. Rows are created
// on the first successful push or pull and updated on every sync after.
func saveSyncMetadata(ctx context.Context, q dbtx, artifactID int64, backend string, upd types.SyncUpdate) error {
	if backend == "" {
		return fmt.Errorf("%w: sync backend name is required", storage.ErrInvariantViolation)
	}
	if _, err := getArtifact(ctx, q, artifactID); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO sync_metadata (artifact_id, backend) VALUES (?, ?)
	`, artifactID, backend)
	if err != nil {
		return fmt.Errorf("failed to ensure sync metadata row: %w", mapError(err))
	}

	var sets []string
	var args []any
	if upd.PushHash != nil {
		sets = append(sets, "last_push_hash = ?")
		args = append(args, *upd.PushHash)
	}
	if upd.PushAt != nil {
		sets = append(sets, "last_push_at = ?")
		args = append(args, upd.PushAt.UTC())
	}
	if upd.PullHash != nil {
		sets = append(sets, "last_pull_hash = ?")
		args = append(args, *upd.PullHash)
	}
	if upd.PullAt != nil {
		sets = append(sets, "last_pull_at = ?")
		args = append(args, upd.PullAt.UTC())
	}
	if upd.RemoteID != nil {
		sets = append(sets, "remote_id = ?")
		args = append(args, *upd.RemoteID)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, artifactID, backend)
	// #nosec G201 - SET clauses are fixed strings assembled above
	query := fmt.Sprintf(`UPDATE sync_metadata SET %s WHERE artifact_id = ? AND backend = ?`, strings.Join(sets, ", "))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sync metadata: %w", mapError(err))
	}
	return nil
}

func getSyncMetadata(ctx context.Context, q dbtx, artifactID int64, backend string) (*types.SyncMetadata, error) {
	var m types.SyncMetadata
	var pushAt, pullAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT artifact_id, backend, last_push_hash, last_push_at, last_pull_hash, last_pull_at, remote_id
		FROM sync_metadata WHERE artifact_id = ? AND backend = ?
	`, artifactID, backend).Scan(&m.ArtifactID, &m.Backend, &m.LastPushHash, &pushAt, &m.LastPullHash, &pullAt, &m.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metadata for artifact %d: %w", artifactID, mapError(err))
	}
	if pushAt.Valid {
		t := pushAt.Time
		m.LastPushAt = &t
	}
	if pullAt.Valid {
		t := pullAt.Time
		m.LastPullAt = &t
	}
	return &m, nil
}

// SaveSyncMetadata partially upserts per-backend sync bookkeeping.
func (s *Store) SaveSyncMetadata(ctx context.Context, artifactID int64, backend string, upd types.SyncUpdate) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		if err := saveSyncMetadata(ctx, tx.tx, artifactID, backend, upd); err != nil {
			return err
		}
		tx.emit("sync_metadata", strconv.FormatInt(artifactID, 10)+":"+backend, "save", "")
		return nil
	})
}

func (t *sqliteTx) SaveSyncMetadata(ctx context.Context, artifactID int64, backend string, upd types.SyncUpdate) error {
	if err := saveSyncMetadata(ctx, t.tx, artifactID, backend, upd); err != nil {
		return err
	}
	t.emit("sync_metadata", strconv.FormatInt(artifactID, 10)+":"+backend, "save", "")
	return nil
}

// GetSyncMetadata returns the sync bookkeeping for an artifact/backend pair.
func (s *Store) GetSyncMetadata(ctx context.Context, artifactID int64, backend string) (*types.SyncMetadata, error) {
	return getSyncMetadata(ctx, s.db, artifactID, backend)
}

func (t *sqliteTx) GetSyncMetadata(ctx context.Context, artifactID int64, backend string) (*types.SyncMetadata, error) {
	return getSyncMetadata(ctx, t.tx, artifactID, backend)
}

// FindArtifactByRemoteID reverse-looks-up an artifact from its cached
// remote identifier. Used to translate remote relations on pull.
func (s *Store) FindArtifactByRemoteID(ctx context.Context, backend, remoteID string) (*types.Artifact, error) {
	if remoteID == "" {
		return nil, fmt.Errorf("%w: empty remote_id", storage.ErrNotFound)
	}
	var artifactID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact_id FROM sync_metadata WHERE backend = ? AND remote_id = ?
	`, backend, remoteID).Scan(&artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve remote_id %s: %w", remoteID, mapError(err))
	}
	return getArtifact(ctx, s.db, artifactID)
}
