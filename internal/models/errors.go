package models

import (
	"errors"
	"fmt"
)

// ErrValidation matches every ValidationError through errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError describes input rejected before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
