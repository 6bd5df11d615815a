package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// Raw claim row operations. All lifecycle rules (gates, transitions, audit
// events) live in the claims package; nothing else may mutate these tables.

const claimColumns = `id, project_id, classification, claim_text, origin, status, promotion_record_id, created_at, superseded_by`

func scanClaim(scan func(dest ...any) error) (*types.Claim, error) {
	var c types.Claim
	var promotionID, supersededBy sql.NullInt64
	err := scan(&c.ID, &c.ProjectID, &c.Classification, &c.ClaimText, &c.Origin, &c.Status, &promotionID, &c.CreatedAt, &supersededBy)
	if err != nil {
		return nil, err
	}
	if promotionID.Valid {
		v := promotionID.Int64
		c.PromotionRecordID = &v
	}
	if supersededBy.Valid {
		v := supersededBy.Int64
		c.SupersededBy = &v
	}
	return &c, nil
}

func insertClaim(ctx context.Context, q dbtx, claim *types.Claim) (*types.Claim, error) {
	if claim.ClaimText == "" {
		return nil, fmt.Errorf("%w: claim_text is required", storage.ErrInvariantViolation)
	}
	now := time.Now().UTC()
	var promotionID any
	if claim.PromotionRecordID != nil {
		promotionID = *claim.PromotionRecordID
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO blueprint_claims (project_id, classification, claim_text, origin, status, promotion_record_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, claim.ProjectID, claim.Classification, claim.ClaimText, claim.Origin, types.ClaimActive, promotionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert claim: %w", mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim id: %w", mapError(err))
	}
	return getClaim(ctx, q, id)
}

func getClaim(ctx context.Context, q dbtx, id int64) (*types.Claim, error) {
	row := q.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM blueprint_claims WHERE id = ?`, id)
	c, err := scanClaim(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to get claim %d: %w", id, mapError(err))
	}
	return c, nil
}

func collectClaims(rows *sql.Rows) ([]*types.Claim, error) {
	var claims []*types.Claim
	for rows.Next() {
		c, err := scanClaim(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", mapError(err))
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func activeClaims(ctx context.Context, q dbtx, projectID int64) ([]*types.Claim, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+claimColumns+` FROM blueprint_claims
		WHERE project_id = ? AND status = 'active' ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active claims: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()
	return collectClaims(rows)
}

func setClaimStatus(ctx context.Context, q dbtx, id int64, status types.ClaimStatus, supersededBy *int64) error {
	var by any
	if supersededBy != nil {
		by = *supersededBy
	}
	res, err := q.ExecContext(ctx, `
		UPDATE blueprint_claims SET status = ?, superseded_by = ? WHERE id = ?
	`, status, by, id)
	if err != nil {
		return fmt.Errorf("failed to set claim status: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", mapError(err))
	}
	if n == 0 {
		return fmt.Errorf("claim %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func insertPromotionRecord(ctx context.Context, q dbtx, rec *types.PromotionRecord) (*types.PromotionRecord, error) {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		INSERT INTO promotion_records (project_id, candidate_claim_text, classification, evidence_hash,
			source_sessions, source_stages, feedback_artifacts, decision, reasons, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ProjectID, rec.CandidateClaimText, rec.Classification, rec.EvidenceHash,
		formatJSONStringArray(rec.SourceSessions), formatJSONStringArray(rec.SourceStages),
		formatJSONStringArray(rec.FeedbackArtifacts), rec.Decision, formatJSONStringArray(rec.Reasons), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert promotion record: %w", mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read promotion record id: %w", mapError(err))
	}
	out := *rec
	out.ID = id
	out.CreatedAt = now
	return &out, nil
}

func insertClaimEvent(ctx context.Context, q dbtx, ev *types.ClaimEvent) (*types.ClaimEvent, error) {
	if ev.Reason == "" {
		return nil, fmt.Errorf("%w: lifecycle event reason is required", storage.ErrInvariantViolation)
	}
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		INSERT INTO claim_events (claim_id, old_status, new_status, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ClaimID, ev.OldStatus, ev.NewStatus, ev.Reason, ev.Actor, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert claim event: %w", mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim event id: %w", mapError(err))
	}
	out := *ev
	out.ID = id
	out.CreatedAt = now
	return &out, nil
}

func findClaimEvent(ctx context.Context, q dbtx, claimID int64, reason string) (*types.ClaimEvent, error) {
	var ev types.ClaimEvent
	err := q.QueryRowContext(ctx, `
		SELECT id, claim_id, old_status, new_status, reason, actor, created_at
		FROM claim_events WHERE claim_id = ? AND reason = ?
		ORDER BY id LIMIT 1
	`, claimID, reason).Scan(&ev.ID, &ev.ClaimID, &ev.OldStatus, &ev.NewStatus, &ev.Reason, &ev.Actor, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find claim event: %w", mapError(err))
	}
	return &ev, nil
}

// Store methods

func (s *Store) InsertClaim(ctx context.Context, claim *types.Claim) (*types.Claim, error) {
	var out *types.Claim
	err := s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		var err error
		out, err = insertClaim(ctx, tx.tx, claim)
		if err == nil {
			tx.emit("claim", strconv.FormatInt(out.ID, 10), "insert", "")
		}
		return err
	})
	return out, err
}

func (s *Store) GetClaim(ctx context.Context, id int64) (*types.Claim, error) {
	return getClaim(ctx, s.db, id)
}

func (s *Store) ActiveClaims(ctx context.Context, projectID int64) ([]*types.Claim, error) {
	return activeClaims(ctx, s.db, projectID)
}

func (s *Store) SetClaimStatus(ctx context.Context, id int64, status types.ClaimStatus, supersededBy *int64) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		if err := setClaimStatus(ctx, tx.tx, id, status, supersededBy); err != nil {
			return err
		}
		tx.emit("claim", strconv.FormatInt(id, 10), "status:"+string(status), "")
		return nil
	})
}

func (s *Store) InsertPromotionRecord(ctx context.Context, rec *types.PromotionRecord) (*types.PromotionRecord, error) {
	var out *types.PromotionRecord
	err := s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		var err error
		out, err = insertPromotionRecord(ctx, tx.tx, rec)
		if err == nil {
			tx.emit("promotion_record", strconv.FormatInt(out.ID, 10), "insert", "")
		}
		return err
	})
	return out, err
}

func (s *Store) InsertClaimEvent(ctx context.Context, ev *types.ClaimEvent) (*types.ClaimEvent, error) {
	var out *types.ClaimEvent
	err := s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		var err error
		out, err = insertClaimEvent(ctx, tx.tx, ev)
		if err == nil {
			tx.emit("claim_event", strconv.FormatInt(out.ID, 10), "insert", ev.Actor)
		}
		return err
	})
	return out, err
}

func (s *Store) FindClaimEvent(ctx context.Context, claimID int64, reason string) (*types.ClaimEvent, error) {
	return findClaimEvent(ctx, s.db, claimID, reason)
}

// Transaction methods

func (t *sqliteTx) InsertClaim(ctx context.Context, claim *types.Claim) (*types.Claim, error) {
	out, err := insertClaim(ctx, t.tx, claim)
	if err == nil {
		t.emit("claim", strconv.FormatInt(out.ID, 10), "insert", "")
	}
	return out, err
}

func (t *sqliteTx) GetClaim(ctx context.Context, id int64) (*types.Claim, error) {
	return getClaim(ctx, t.tx, id)
}

func (t *sqliteTx) ActiveClaims(ctx context.Context, projectID int64) ([]*types.Claim, error) {
	return activeClaims(ctx, t.tx, projectID)
}

func (t *sqliteTx) SetClaimStatus(ctx context.Context, id int64, status types.ClaimStatus, supersededBy *int64) error {
	if err := setClaimStatus(ctx, t.tx, id, status, supersededBy); err != nil {
		return err
	}
	t.emit("claim", strconv.FormatInt(id, 10), "status:"+string(status), "")
	return nil
}

func (t *sqliteTx) InsertPromotionRecord(ctx context.Context, rec *types.PromotionRecord) (*types.PromotionRecord, error) {
	out, err := insertPromotionRecord(ctx, t.tx, rec)
	if err == nil {
		t.emit("promotion_record", strconv.FormatInt(out.ID, 10), "insert", "")
	}
	return out, err
}

func (t *sqliteTx) InsertClaimEvent(ctx context.Context, ev *types.ClaimEvent) (*types.ClaimEvent, error) {
	out, err := insertClaimEvent(ctx, t.tx, ev)
	if err == nil {
		t.emit("claim_event", strconv.FormatInt(out.ID, 10), "insert", ev.Actor)
	}
	return out, err
}

func (t *sqliteTx) FindClaimEvent(ctx context.Context, claimID int64, reason string) (*types.ClaimEvent, error) {
	return findClaimEvent(ctx, t.tx, claimID, reason)
}

// Read-side listings

// ListClaims returns all claims for a project, any status, ordered by id.
func (s *Store) ListClaims(ctx context.Context, projectID int64) ([]*types.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+claimColumns+` FROM blueprint_claims WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()
	return collectClaims(rows)
}

// ListPromotionRecords returns the full append-only promotion history for
// a project, oldest first.
func (s *Store) ListPromotionRecords(ctx context.Context, projectID int64) ([]*types.PromotionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, candidate_claim_text, classification, evidence_hash,
			source_sessions, source_stages, feedback_artifacts, decision, reasons, created_at
		FROM promotion_records WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list promotion records: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*types.PromotionRecord
	for rows.Next() {
		var r types.PromotionRecord
		var sessions, stages, feedback, reasons string
		err := rows.Scan(&r.ID, &r.ProjectID, &r.CandidateClaimText, &r.Classification, &r.EvidenceHash,
			&sessions, &stages, &feedback, &r.Decision, &reasons, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion record: %w", mapError(err))
		}
		r.SourceSessions = parseJSONStringArray(sessions)
		r.SourceStages = parseJSONStringArray(stages)
		r.FeedbackArtifacts = parseJSONStringArray(feedback)
		r.Reasons = parseJSONStringArray(reasons)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// ListClaimEvents returns the lifecycle event trail for a claim, oldest
// first.
func (s *Store) ListClaimEvents(ctx context.Context, claimID int64) ([]*types.ClaimEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, claim_id, old_status, new_status, reason, actor, created_at
		FROM claim_events WHERE claim_id = ? ORDER BY id
	`, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claim events: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var events []*types.ClaimEvent
	for rows.Next() {
		var ev types.ClaimEvent
		if err := rows.Scan(&ev.ID, &ev.ClaimID, &ev.OldStatus, &ev.NewStatus, &ev.Reason, &ev.Actor, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim event: %w", mapError(err))
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
