package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/idse/internal/storage"
)

// isUniqueConstraintError checks if err is a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// isForeignKeyError checks if err is a FOREIGN KEY constraint violation.
func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// isCheckConstraintError checks if err is a CHECK constraint violation.
func isCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// mapError translates driver errors into the storage error kinds. UNIQUE
// violations become Conflict, FK violations become InvariantViolation,
// missing rows become NotFound, and corruption is surfaced as such.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case isUniqueConstraintError(err):
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	case isForeignKeyError(err), isCheckConstraintError(err):
		return fmt.Errorf("%w: %v", storage.ErrInvariantViolation, err)
	case strings.Contains(err.Error(), "database disk image is malformed"):
		return fmt.Errorf("%w: %v", storage.ErrCorruption, err)
	default:
		return fmt.Errorf("%w: %v", storage.ErrIO, err)
	}
}
