package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// saveProject inserts a project if it does not exist and returns the row.
// Idempotent on name; a non-empty stack on a repeat call updates the stack.
func saveProject(ctx context.Context, q dbtx, name, stack string) (*types.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", storage.ErrInvariantViolation)
	}

	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		INSERT INTO projects (name, stack, created_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			stack = CASE WHEN excluded.stack != '' THEN excluded.stack ELSE projects.stack END
	`, name, stack, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save project: %w", mapError(err))
	}

	return getProject(ctx, q, name)
}

func getProject(ctx context.Context, q dbtx, name string) (*types.Project, error) {
	var p types.Project
	err := q.QueryRowContext(ctx, `
		SELECT id, name, stack, created_at FROM projects WHERE name = ?
	`, name).Scan(&p.ID, &p.Name, &p.Stack, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", name, mapError(err))
	}
	return &p, nil
}

// SaveProject creates a project, idempotent on name.
func (s *Store) SaveProject(ctx context.Context, name, stack string) (*types.Project, error) {
	var p *types.Project
	err := s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		var err error
		p, err = saveProject(ctx, tx.tx, name, stack)
		if err == nil {
			tx.emit("project", name, "save", "")
		}
		return err
	})
	return p, err
}

func (t *sqliteTx) SaveProject(ctx context.Context, name, stack string) (*types.Project, error) {
	p, err := saveProject(ctx, t.tx, name, stack)
	if err == nil {
		t.emit("project", name, "save", "")
	}
	return p, err
}

// GetProject looks up a project by name.
func (s *Store) GetProject(ctx context.Context, name string) (*types.Project, error) {
	return getProject(ctx, s.db, name)
}

// ListProjects returns all projects ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stack, created_at FROM projects ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var projects []*types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Stack, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", mapError(err))
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}
