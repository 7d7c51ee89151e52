package model

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the sentinel wrapped by every InputError.
var ErrInvalidInput = errors.New("invalid input")

// InputError reports an empty or malformed batch. It is a hard precondition
// failure: no analysis is produced and no state is touched.
type InputError struct {
	Field  string
	Reason string
	Index  int
}

func (e *InputError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid input: transaction[%d].%s: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// NewBatchError returns an InputError about the batch as a whole.
func NewBatchError(field, reason string) *InputError {
	return &InputError{Field: field, Reason: reason, Index: -1}
}

// InsufficientDataError is returned by a statistical lens that lacks the
// samples it needs. The lens abstains; the analysis carries on.
type InsufficientDataError struct {
	Lens string
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data (have %d samples, need %d)", e.Lens, e.Have, e.Need)
}

// PersistenceError wraps a failed read or write against a state store.
type PersistenceError struct {
	Err error
	Op  string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err, or returns nil when err is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
