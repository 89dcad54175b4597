package shared

import "errors"

// Error kinds shared by every domain package. Domain sentinels wrap one of
// these so the HTTP layer can map them with errors.Is.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the request clashes with current state, such as
	// insufficient stock or an invalid state transition.
	ErrConflict = errors.New("conflict")
)
