package storage

import "errors"

// Error taxonomy for Storage operations (spec.md §7). These are sentinel
// errors; callers compare with errors.Is, and wrapping adds context via
// fmt.Errorf("...: %w", ...).
var (
	ErrInvalid        = errors.New("storage: invalid handle")
	ErrStale          = errors.New("storage: stale handle (version mismatch)")
	ErrTypeMismatch   = errors.New("storage: type mismatch")
	ErrNotFound       = errors.New("storage: guid not found")
	ErrAlreadyPresent = errors.New("storage: guid already present")
)
