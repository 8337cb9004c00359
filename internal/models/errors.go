package models

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups for orders, menu items, components or
// catalog records that do not exist. Handlers map it to 404 instead
// of treating it as a validation failure.
var ErrNotFound = errors.New("not found")

// ValidationError describes a rejected field at the operation boundary
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
