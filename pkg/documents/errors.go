package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceContention is returned when a folio could not be allocated
	// within the retry budget. The whole request may be retried.
	ErrResourceContention = errors.New("resource contention allocating folio")

	// ErrCaseNotFound is returned when the case does not exist.
	ErrCaseNotFound = errors.New("case not found")

	// ErrDocumentNotFound is returned when the document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

// ValidationError reports malformed input. No state was changed.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StorageError reports an unexpected failure reading or writing content.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
