package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation_error")
	ErrNotFound         = errors.New("not_found")
	ErrQuantityExceeded = errors.New("quantity_exceeded")
	ErrConflict         = errors.New("conflict")
)

// ValidationError rejects a request with missing or malformed fields.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent order, item or assignment.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(entity, id string) error { return &NotFoundError{Entity: entity, ID: id} }

// QuantityExceededError rejects an entry larger than the remaining capacity.
type QuantityExceededError struct {
	AssignmentID string
	Track        TrackKind
	Requested    int
	Remaining    int
}

func (e *QuantityExceededError) Error() string {
	return fmt.Sprintf("assignment %s (%s): requested %d exceeds remaining %d",
		e.AssignmentID, e.Track, e.Requested, e.Remaining)
}

func (e *QuantityExceededError) Unwrap() error { return ErrQuantityExceeded }

// ConflictError signals stale client state; the client should refresh and retry.
type ConflictError struct {
	Reason    string
	Retryable bool
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

func Conflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...), Retryable: true}
}
