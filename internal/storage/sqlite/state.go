package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// saveSessionState persists the per-session state blob. The DB copy is
// authoritative; exported views are regenerated from it.
func saveSessionState(ctx context.Context, q dbtx, projectName, sessionID string, state types.SessionState) error {
	sess, err := getSession(ctx, q, projectName, sessionID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal session state: %v", storage.ErrInvariantViolation, err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO session_state (session_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, sess.ID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", mapError(err))
	}
	return nil
}

// SaveSessionState persists a session's per-stage state blob.
func (s *Store) SaveSessionState(ctx context.Context, projectName, sessionID string, state types.SessionState) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		if err := saveSessionState(ctx, tx.tx, projectName, sessionID, state); err != nil {
			return err
		}
		tx.emit("session_state", sessionID, "save", "")
		return nil
	})
}

func (t *sqliteTx) SaveSessionState(ctx context.Context, projectName, sessionID string, state types.SessionState) error {
	if err := saveSessionState(ctx, t.tx, projectName, sessionID, state); err != nil {
		return err
	}
	t.emit("session_state", sessionID, "save", "")
	return nil
}

// GetSessionState returns a session's state blob. A session with no stored
// state yields an empty (non-nil) state.
func (s *Store) GetSessionState(ctx context.Context, projectName, sessionID string) (types.SessionState, error) {
	sess, err := getSession(ctx, s.db, projectName, sessionID)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM session_state WHERE session_id = ?`, sess.ID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SessionState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session state: %w", mapError(err))
	}

	var state types.SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("%w: malformed session state blob: %v", storage.ErrCorruption, err)
	}
	return state, nil
}

// AddFeedbackSignal attaches a feedback signal to an artifact.
func (s *Store) AddFeedbackSignal(ctx context.Context, artifactID int64, kind types.FeedbackSignalKind, note string) error {
	if kind != types.SignalContradiction && kind != types.SignalSupport {
		return fmt.Errorf("%w: unknown feedback signal kind %q", storage.ErrInvariantViolation, kind)
	}
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		if _, err := getArtifact(ctx, tx.tx, artifactID); err != nil {
			return err
		}
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO feedback_signals (artifact_id, kind, note, created_at) VALUES (?, ?, ?, ?)
		`, artifactID, kind, note, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to add feedback signal: %w", mapError(err))
		}
		tx.emit("feedback_signal", strconv.FormatInt(artifactID, 10), "add:"+string(kind), "")
		return nil
	})
}

// GetFeedbackSignals returns all signals attached to any of the given
// artifacts.
func (s *Store) GetFeedbackSignals(ctx context.Context, artifactIDs []int64) ([]*types.FeedbackSignal, error) {
	if len(artifactIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(artifactIDs)), ",")
	args := make([]any, len(artifactIDs))
	for i, id := range artifactIDs {
		args[i] = id
	}

	// #nosec G201 - placeholders only, values are bound
	query := fmt.Sprintf(`
		SELECT id, artifact_id, kind, note, created_at
		FROM feedback_signals WHERE artifact_id IN (%s) ORDER BY id
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback signals: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var signals []*types.FeedbackSignal
	for rows.Next() {
		var sig types.FeedbackSignal
		if err := rows.Scan(&sig.ID, &sig.ArtifactID, &sig.Kind, &sig.Note, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback signal: %w", mapError(err))
		}
		signals = append(signals, &sig)
	}
	return signals, rows.Err()
}

// Statistics returns aggregate counts for status displays.
func (s *Store) Statistics(ctx context.Context) (*types.Statistics, error) {
	var stats types.Statistics

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&stats.Projects)
	if err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", mapError(err))
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status IN ('draft', 'in_progress', 'review') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END), 0)
		FROM sessions
	`).Scan(&stats.Sessions, &stats.ActiveSessions, &stats.CompleteSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", mapError(err))
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&stats.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", mapError(err))
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' AND origin = 'declared' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' AND origin = 'converged' THEN 1 ELSE 0 END), 0)
		FROM blueprint_claims
	`).Scan(&stats.ActiveClaims, &stats.DeclaredClaims, &stats.ConvergedClaims)
	if err != nil {
		return nil, fmt.Errorf("failed to count claims: %w", mapError(err))
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM promotion_records`).Scan(&stats.PromotionRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to count promotion records: %w", mapError(err))
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM components`).Scan(&stats.Components)
	if err != nil {
		return nil, fmt.Errorf("failed to count components: %w", mapError(err))
	}

	return &stats, nil
}
