package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

func validComponentType(t types.ComponentType) bool {
	switch t {
	case types.ComponentProjection, types.ComponentOperation, types.ComponentInfrastructure,
		types.ComponentRouting, types.ComponentArtifact:
		return true
	}
	return false
}

// SaveComponent upserts a component by name. The artifact -> component ->
// primitive chain is mandatory, so parent_primitives must be non-empty.
func (s *Store) SaveComponent(ctx context.Context, comp *types.Component, actor string) (*types.Component, error) {
	if comp.Name == "" {
		return nil, fmt.Errorf("%w: component name is required", storage.ErrInvariantViolation)
	}
	if len(comp.ParentPrimitives) == 0 {
		return nil, fmt.Errorf("%w: component %s has no parent primitives", storage.ErrInvariantViolation, comp.Name)
	}
	if comp.Type == "" {
		comp.Type = types.ComponentOperation
	}
	if !validComponentType(comp.Type) {
		return nil, fmt.Errorf("%w: unknown component type %q", storage.ErrInvariantViolation, comp.Type)
	}

	var out *types.Component
	err := s.withTx(ctx, func(ctx context.Context, tx *sqliteTx) error {
		now := time.Now().UTC()
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO components (name, type, source_file, parent_primitives, last_seen_in_session, last_updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				type = excluded.type,
				source_file = excluded.source_file,
				parent_primitives = excluded.parent_primitives,
				last_seen_in_session = excluded.last_seen_in_session,
				last_updated_at = excluded.last_updated_at
		`, comp.Name, comp.Type, comp.SourceFile, formatJSONStringArray(comp.ParentPrimitives), comp.LastSeenInSession, now)
		if err != nil {
			return fmt.Errorf("failed to save component: %w", mapError(err))
		}

		out, err = getComponent(ctx, tx.tx, comp.Name)
		if err != nil {
			return err
		}
		tx.emit("component", comp.Name, "save", actor)
		return nil
	})
	return out, err
}

func getComponent(ctx context.Context, q dbtx, name string) (*types.Component, error) {
	var c types.Component
	var primitives string
	err := q.QueryRowContext(ctx, `
		SELECT id, name, type, source_file, parent_primitives, last_seen_in_session, last_updated_at
		FROM components WHERE name = ?
	`, name).Scan(&c.ID, &c.Name, &c.Type, &c.SourceFile, &primitives, &c.LastSeenInSession, &c.LastUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get component %s: %w", name, mapError(err))
	}
	c.ParentPrimitives = parseJSONStringArray(primitives)
	return &c, nil
}

// GetComponent looks up a component by name.
func (s *Store) GetComponent(ctx context.Context, name string) (*types.Component, error) {
	return getComponent(ctx, s.db, name)
}

// ListComponents returns all components ordered by name.
func (s *Store) ListComponents(ctx context.Context) ([]*types.Component, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, source_file, parent_primitives, last_seen_in_session, last_updated_at
		FROM components ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	return collectComponents(rows)
}

func collectComponents(rows *sql.Rows) ([]*types.Component, error) {
	var components []*types.Component
	for rows.Next() {
		var c types.Component
		var primitives string
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.SourceFile, &primitives, &c.LastSeenInSession, &c.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", mapError(err))
		}
		c.ParentPrimitives = parseJSONStringArray(primitives)
		components = append(components, &c)
	}
	return components, rows.Err()
}
