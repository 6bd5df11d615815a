// Package sqlite implements the spine storage engine on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/idse/internal/storage"
)

// AuditFunc receives a best-effort structured event for every committed
// write: {entity, id, op, actor, at}. Emission happens after commit and is
// never part of the transaction; a nil func disables emission.
type AuditFunc func(entity string, id string, op string, actor string)

// Store is the SQLite-backed spine store. A single writer is assumed;
// concurrent readers are permitted (WAL mode).
type Store struct {
	db    *sql.DB
	path  string
	Audit AuditFunc
}

// dbtx is the executor shared by *sql.DB and *sql.Tx so repository
// operations can run standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the spine database at path, applies the schema,
// and runs all pending migrations. Safe to call repeatedly; schema changes
// are forward-only and idempotent.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The pure Go driver is safest with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UnderlyingDB returns the underlying *sql.DB connection.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// auditEvent is a pending best-effort event collected during a transaction
// and flushed only after commit.
type auditEvent struct {
	entity string
	id     string
	op     string
	actor  string
}

// sqliteTx implements storage.Transaction over a live *sql.Tx.
type sqliteTx struct {
	tx      *sql.Tx
	pending []auditEvent
}

func (t *sqliteTx) emit(entity, id, op, actor string) {
	t.pending = append(t.pending, auditEvent{entity: entity, id: id, op: op, actor: actor})
}

// txContextKey carries the active transaction through the context so
// nested transactional calls join it instead of beginning a second one.
// The pool holds a single connection; a second BeginTx would block on it
// until the outer transaction releases the connection.
type txContextKey struct{}

func txFromContext(ctx context.Context) *sqliteTx {
	tx, _ := ctx.Value(txContextKey{}).(*sqliteTx)
	return tx
}

// withTx runs fn inside a BEGIN IMMEDIATE transaction, committing on nil
// and rolling back on error or panic. Audit events collected by fn are
// flushed only after a successful commit. When ctx already carries a
// transaction, fn joins it: no begin, no commit, and pending audit events
// flush with the outermost transaction.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx *sqliteTx) error) error {
	if outer := txFromContext(ctx); outer != nil {
		return fn(ctx, outer)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	wrapped := &sqliteTx{tx: tx}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txContextKey{}, wrapped), wrapped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	if s.Audit != nil {
		for _, ev := range wrapped.pending {
			s.Audit(ev.entity, ev.id, ev.op, ev.actor)
		}
	}
	return nil
}

// RunInTransaction executes fn within a single database transaction.
// The storage.Transaction passed to fn shares the transaction connection;
// all writes commit or roll back together. The context handed to fn
// carries the transaction: nested RunInTransaction calls (and the Store's
// own write helpers) made with it reuse the outermost transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Transaction) error) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		return fn(ctx, tx)
	})
}

// Verify runs the integrity pragma plus spine invariant sweeps: converged
// claims must reference a promotion record, declared claims must not, and
// stored artifact hashes must match their content.
func (s *Store) Verify(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", mapError(err))
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity_check reported %q", storage.ErrCorruption, result)
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blueprint_claims
		WHERE (origin = 'converged' AND promotion_record_id IS NULL)
		   OR (origin = 'declared' AND promotion_record_id IS NOT NULL)
	`).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to sweep claim origins: %w", mapError(err))
	}
	if n > 0 {
		return fmt.Errorf("%w: %d claims violate the origin/promotion-record invariant", storage.ErrCorruption, n)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT idse_id, content, content_hash FROM artifacts`)
	if err != nil {
		return fmt.Errorf("failed to sweep artifact hashes: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var idseID, content, hash string
		if err := rows.Scan(&idseID, &content, &hash); err != nil {
			return fmt.Errorf("failed to scan artifact: %w", mapError(err))
		}
		if computeContentHash(content) != hash {
			return fmt.Errorf("%w: artifact %s content hash mismatch", storage.ErrCorruption, idseID)
		}
	}
	return rows.Err()
}
