package models

import (
	"errors"
	"fmt"
)

// ValidationError rejects a request whose required input is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Entity, e.ID) }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
