// Package cmserr defines the error kinds surfaced by the content core.
package cmserr

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that a slug did not resolve, a storage folder is
// missing, or a taxonomy document does not exist. Callers treat it as the
// defined not-found signal, never as a retryable failure.
var ErrNotFound = errors.New("not found")

// ValidationError reports input that was rejected before any write occurred.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CorruptError reports a document that exists on disk but failed to parse.
// Listing operations skip these entries; single-entity operations surface them.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt document %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}
