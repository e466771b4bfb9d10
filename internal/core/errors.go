package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("transaction not found")
	ErrPersistence = errors.New("persistence failed")

	ErrEmptyID         = errors.New("empty id")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidAmount   = errors.New("amount must be a positive finite number")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidType     = errors.New("type must be income or expense")
	ErrInvalidCategory = errors.New("category must be lowercase and non-empty")
	ErrUnknownField    = errors.New("unknown field")
	ErrDuplicateID     = errors.New("duplicate id")
)

// ValidationError reports a rejected field. It matches both ErrValidation
// and the underlying cause with errors.Is.
type ValidationError struct {
	Field Field
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// PersistenceError reports a failed read or write of the persisted ledger.
// The in-memory state is kept when a write fails.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// NotFound returns an error matching ErrNotFound for the given id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
