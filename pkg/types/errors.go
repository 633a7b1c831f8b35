package types

import (
	"errors"
	"fmt"
)

// Model errors. Integrity defects found by a scan are findings, not errors,
// and never use these values.
var (
	ErrArgument         = errors.New("invalid argument")
	ErrSchema           = errors.New("required field missing from class")
	ErrTransactionState = errors.New("no active edit operation")
)

// Repository errors.
var (
	ErrNotFound         = errors.New("record not found")
	ErrClassNotFound    = errors.New("class not found")
	ErrRelationNotFound = errors.New("relation not found")
	ErrDetached         = errors.New("repository is detached")
	ErrAlreadyAttached  = errors.New("repository is already attached")
)

// FieldError reports a required field absent from a class. It matches
// ErrSchema under errors.Is.
type FieldError struct {
	Class string
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: class %q has no field %q", ErrSchema, e.Class, e.Field)
}

// Unwrap returns ErrSchema.
func (e *FieldError) Unwrap() error {
	return ErrSchema
}
