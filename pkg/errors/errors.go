// Package errors provides common domain error types for the studio-ops core.
//
// It defines sentinel errors for conditions like "not found" or "validation
// error" that are shared across all packages, so callers can use errors.Is()
// checks without importing store internals.
//
// Usage:
//
//	import soerrors "github.com/marloweandco/studio-ops/pkg/errors"
//
//	// Return a domain error
//	return nil, soerrors.ErrNotFound
//
//	// Check for domain errors
//	if soerrors.IsNotFound(err) {
//	    // handle not found case
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrAlreadyExists indicates the record already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState indicates the operation is not valid for the record's
	// current state (e.g., approving a suggestion that is no longer pending).
	ErrInvalidState = errors.New("invalid state")

	// ErrStoreUnavailable indicates the backing store is unreachable.
	// Batch processing halts on this error; it is never skipped per-item.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether any error in err's chain is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsAlreadyExists reports whether any error in err's chain is ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsStoreUnavailable reports whether any error in err's chain is ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
