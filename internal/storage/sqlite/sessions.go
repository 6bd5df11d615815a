package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// saveSession inserts a session if absent and returns the row. Idempotent
// on (project, session_id). The reserved blueprint session ID and the
// blueprint type imply each other.
func saveSession(ctx context.Context, q dbtx, projectName, sessionID string, typ types.SessionType, owner string) (*types.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", storage.ErrInvariantViolation)
	}
	if typ == "" {
		typ = types.SessionFeature
		if sessionID == types.BlueprintSessionID {
			typ = types.SessionBlueprint
		}
	}
	if (sessionID == types.BlueprintSessionID) != (typ == types.SessionBlueprint) {
		return nil, fmt.Errorf("%w: session %q must pair with type %q", storage.ErrInvariantViolation, types.BlueprintSessionID, types.SessionBlueprint)
	}

	project, err := getProject(ctx, q, projectName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = q.ExecContext(ctx, `
		INSERT INTO sessions (project_id, session_id, type, status, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, session_id) DO UPDATE SET
			owner = CASE WHEN excluded.owner != '' THEN excluded.owner ELSE sessions.owner END
	`, project.ID, sessionID, typ, types.SessionDraft, owner, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", mapError(err))
	}

	return getSessionByProjectID(ctx, q, project.ID, sessionID)
}

func getSessionByProjectID(ctx context.Context, q dbtx, projectID int64, sessionID string) (*types.Session, error) {
	var sess types.Session
	err := q.QueryRowContext(ctx, `
		SELECT id, project_id, session_id, type, status, owner, created_at
		FROM sessions WHERE project_id = ? AND session_id = ?
	`, projectID, sessionID).Scan(&sess.ID, &sess.ProjectID, &sess.SessionID, &sess.Type, &sess.Status, &sess.Owner, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, mapError(err))
	}
	return &sess, nil
}

func getSession(ctx context.Context, q dbtx, projectName, sessionID string) (*types.Session, error) {
	project, err := getProject(ctx, q, projectName)
	if err != nil {
		return nil, err
	}
	return getSessionByProjectID(ctx, q, project.ID, sessionID)
}

// setSessionStatus updates a session's status. This is the raw setter; the
// completion gate in the validation engine decides whether a transition to
// complete is permitted.
func setSessionStatus(ctx context.Context, q dbtx, projectName, sessionID string, status types.SessionStatus) error {
	if !types.ValidSessionStatus(status) {
		return fmt.Errorf("%w: unknown session status %q", storage.ErrInvariantViolation, status)
	}
	sess, err := getSession(ctx, q, projectName, sessionID)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE id = ?`, status, sess.ID); err != nil {
		return fmt.Errorf("failed to set session status: %w", mapError(err))
	}
	return nil
}

// SaveSession creates a session, idempotent on (project, session_id).
func (s *Store) SaveSession(ctx context.Context, projectName, sessionID string, typ types.SessionType, owner string) (*types.Session, error) {
	var sess *types.Session
	err := s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		var err error
		sess, err = saveSession(ctx, tx.tx, projectName, sessionID, typ, owner)
		if err == nil {
			tx.emit("session", sessionID, "save", owner)
		}
		return err
	})
	return sess, err
}

func (t *sqliteTx) SaveSession(ctx context.Context, projectName, sessionID string, typ types.SessionType, owner string) (*types.Session, error) {
	sess, err := saveSession(ctx, t.tx, projectName, sessionID, typ, owner)
	if err == nil {
		t.emit("session", sessionID, "save", owner)
	}
	return sess, err
}

// SetSessionStatus updates a session's lifecycle status.
func (s *Store) SetSessionStatus(ctx context.Context, projectName, sessionID string, status types.SessionStatus, actor string) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		if err := setSessionStatus(ctx, tx.tx, projectName, sessionID, status); err != nil {
			return err
		}
		tx.emit("session", sessionID, "status:"+string(status), actor)
		return nil
	})
}

func (t *sqliteTx) SetSessionStatus(ctx context.Context, projectName, sessionID string, status types.SessionStatus, actor string) error {
	if err := setSessionStatus(ctx, t.tx, projectName, sessionID, status); err != nil {
		return err
	}
	t.emit("session", sessionID, "status:"+string(status), actor)
	return nil
}

// GetSession looks up a session by project name and session ID.
func (s *Store) GetSession(ctx context.Context, projectName, sessionID string) (*types.Session, error) {
	return getSession(ctx, s.db, projectName, sessionID)
}

// ListSessions returns all sessions for a project ordered by creation.
func (s *Store) ListSessions(ctx context.Context, projectName string) ([]*types.Session, error) {
	project, err := getProject(ctx, s.db, projectName)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, session_id, type, status, owner, created_at
		FROM sessions WHERE project_id = ? ORDER BY created_at, id
	`, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var sess types.Session
		if err := rows.Scan(&sess.ID, &sess.ProjectID, &sess.SessionID, &sess.Type, &sess.Status, &sess.Owner, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", mapError(err))
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// SetSessionTag sets a key/value tag on a session.
func (s *Store) SetSessionTag(ctx context.Context, projectName, sessionID, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: tag key is required", storage.ErrInvariantViolation)
	}
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		sess, err := getSession(ctx, tx.tx, projectName, sessionID)
		if err != nil {
			return err
		}
		_, err = tx.tx.ExecContext(ctx, `
			INSERT INTO session_tags (session_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value
		`, sess.ID, key, value)
		if err != nil {
			return fmt.Errorf("failed to set session tag: %w", mapError(err))
		}
		tx.emit("session_tag", sessionID+":"+key, "set", "")
		return nil
	})
}

// GetSessionTags returns all tags on a session as a map.
func (s *Store) GetSessionTags(ctx context.Context, projectName, sessionID string) (map[string]string, error) {
	sess, err := getSession(ctx, s.db, projectName, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session_tags WHERE session_id = ?`, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session tags: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	tags := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan session tag: %w", mapError(err))
		}
		tags[k] = v
	}
	return tags, rows.Err()
}
