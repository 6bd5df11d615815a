package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateSessionOwnerDefault relaxes the sessions.owner constraint: early
// schemas declared it NOT NULL with no default, which made owner mandatory
// on every insert. SQLite cannot alter a column in place, so the table is
// rebuilt inside the surrounding exclusive transaction.
func MigrateSessionOwnerDefault(db *sql.DB) error {
	var dflt sql.NullString
	err := db.QueryRow(`
		SELECT dflt_value FROM pragma_table_info('sessions')
		WHERE name = 'owner'
	`).Scan(&dflt)
	if err == sql.ErrNoRows {
		// No owner column at all: very old database, add it directly.
		if _, err := db.Exec(`ALTER TABLE sessions ADD COLUMN owner TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add owner column: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check owner column: %w", err)
	}
	if dflt.Valid {
		// Already carries a default; nothing to rebuild.
		return nil
	}

	// Rebuild: create the target-shape table, copy, swap. Foreign keys are
	// off for the whole migration run, so dependent rows survive the swap.
	stmts := []string{
		`CREATE TABLE sessions_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL,
			session_id TEXT NOT NULL CHECK(length(session_id) > 0),
			type TEXT NOT NULL DEFAULT 'feature' CHECK(type IN ('blueprint', 'feature')),
			status TEXT NOT NULL DEFAULT 'draft',
			owner TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (project_id, session_id),
			FOREIGN KEY (project_id) REFERENCES projects(id)
		)`,
		`INSERT INTO sessions_new (id, project_id, session_id, type, status, owner, created_at)
			SELECT id, project_id, session_id, type, status, COALESCE(owner, ''), created_at FROM sessions`,
		`DROP TABLE sessions`,
		`ALTER TABLE sessions_new RENAME TO sessions`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to rebuild sessions table: %w", err)
		}
	}
	return nil
}
