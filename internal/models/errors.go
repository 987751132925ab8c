package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation references a session or entity
// id that does not exist. Always recoverable by the caller.
var ErrNotFound = errors.New("not found")

// ErrConflictIgnored marks an import entry that was skipped (e.g. missing
// date) rather than failed; it is reported per entry, never aborts a batch.
var ErrConflictIgnored = errors.New("entry skipped")

// ValidationError rejects malformed or out-of-range input before any
// persistence happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
