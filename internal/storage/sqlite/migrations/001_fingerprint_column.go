package migrations

import (
	"database/sql"
	"fmt"

	"github.com/untoldecay/idse/internal/types"
)

// MigrateFingerprintColumn adds the fingerprint column to artifacts and
// backfills it from content. Databases created before convergence scans
// existed have content hashes but no fingerprints.
func MigrateFingerprintColumn(db *sql.DB) error {
	var colName string
	err := db.QueryRow(`
		SELECT name FROM pragma_table_info('artifacts')
		WHERE name = 'fingerprint'
	`).Scan(&colName)

	if err == sql.ErrNoRows {
		if _, err := db.Exec(`ALTER TABLE artifacts ADD COLUMN fingerprint TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add fingerprint column: %w", err)
		}

		rows, err := db.Query(`SELECT id, content FROM artifacts`)
		if err != nil {
			return fmt.Errorf("failed to query existing artifacts: %w", err)
		}
		defer func() { _ = rows.Close() }()

		updates := make(map[int64]string)
		for rows.Next() {
			var id int64
			var content string
			if err := rows.Scan(&id, &content); err != nil {
				return fmt.Errorf("failed to scan artifact: %w", err)
			}
			updates[id] = types.ComputeFingerprint(content)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating artifacts: %w", err)
		}

		stmt, err := db.Prepare(`UPDATE artifacts SET fingerprint = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare update statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for id, fp := range updates {
			if _, err := stmt.Exec(fp, id); err != nil {
				return fmt.Errorf("failed to update fingerprint for artifact %d: %w", id, err)
			}
		}
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to check fingerprint column: %w", err)
	}
	return nil
}
