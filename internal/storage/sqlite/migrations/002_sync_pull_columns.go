package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateSyncPullColumns adds the pull-side bookkeeping columns to
// sync_metadata. Early databases tracked pushes only.
func MigrateSyncPullColumns(db *sql.DB) error {
	for col, ddl := range map[string]string{
		"last_pull_hash": `ALTER TABLE sync_metadata ADD COLUMN last_pull_hash TEXT NOT NULL DEFAULT ''`,
		"last_pull_at":   `ALTER TABLE sync_metadata ADD COLUMN last_pull_at DATETIME`,
	} {
		var colName string
		err := db.QueryRow(`
			SELECT name FROM pragma_table_info('sync_metadata')
			WHERE name = ?
		`, col).Scan(&colName)

		if err == sql.ErrNoRows {
			if _, err := db.Exec(ddl); err != nil {
				return fmt.Errorf("failed to add %s column: %w", col, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to check %s column: %w", col, err)
		}
	}
	return nil
}
