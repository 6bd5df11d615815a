package storage

import "errors"

// Error kinds surfaced by storage backends. Callers discriminate with
// errors.Is; backends wrap these with fmt.Errorf("...: %w", ...) context.
var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on natural-key uniqueness violations.
	ErrConflict = errors.New("conflict")

	// ErrInvariantViolation is returned when a write would break a spine
	// invariant, e.g. linking an artifact to a non-existent session.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrCorruption is returned when the underlying store fails its
	// integrity checks.
	ErrCorruption = errors.New("database corruption")

	// ErrIO wraps I/O-level failures from the underlying store.
	ErrIO = errors.New("storage i/o error")
)
