package store

import (
	"errors"
	"fmt"

	"github.com/ravikumarmistry/quix/internal/driver"
)

// ErrNotFound is the error missing documents wrap on Replace and Delete.
var ErrNotFound = driver.ErrNotFound

// ValidationError reports a missing or malformed argument. It is returned
// before the backing store is contacted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err means the addressed document does not exist.
func IsNotFound(err error) bool {
	return driver.IsNotFound(err)
}
