// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/untoldecay/idse/internal/storage/sqlite/migrations"
)

// Migration represents a single database migration.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations. Every migration is
// idempotent and additive; constraint relaxations rebuild the table inside
// the surrounding exclusive transaction.
var migrationsList = []Migration{
	{"fingerprint_column", migrations.MigrateFingerprintColumn},
	{"sync_pull_columns", migrations.MigrateSyncPullColumns},
	{"session_owner_default", migrations.MigrateSessionOwnerDefault},
}

// MigrationInfo contains metadata about a migration for inspection.
type MigrationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMigrations returns all registered migrations with descriptions.
func ListMigrations() []MigrationInfo {
	result := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		result[i] = MigrationInfo{Name: m.Name, Description: migrationDescription(m.Name)}
	}
	return result
}

func migrationDescription(name string) string {
	descriptions := map[string]string{
		"fingerprint_column":    "Adds fingerprint column to artifacts for convergence scans",
		"sync_pull_columns":     "Adds last_pull_hash/last_pull_at columns to sync_metadata",
		"session_owner_default": "Rebuilds sessions so owner carries a default (constraint relaxation)",
	}
	if desc, ok := descriptions[name]; ok {
		return desc
	}
	return "Unknown migration"
}

// RunMigrations executes all registered migrations in order and records a
// marker row per migration. Uses an EXCLUSIVE transaction so parallel
// processes opening the same database cannot race on check-then-modify
// operations.
func RunMigrations(db *sql.DB) error {
	// PRAGMA foreign_keys must be toggled outside any transaction (SQLite
	// limitation). Rebuild migrations drop and recreate tables and need
	// foreign keys off so ON DELETE CASCADE cannot fire mid-rebuild.
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		var applied int
		err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, migration.Name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration marker %s: %w", migration.Name, err)
		}
		if applied > 0 {
			continue
		}
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, migration.Name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true

	return nil
}
