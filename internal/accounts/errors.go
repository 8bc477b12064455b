package accounts

import (
	"errors"
	"fmt"
)

var (
	ErrWeakPassword           = errors.New("password does not meet the minimum strength")
	ErrSelfDeletion           = errors.New("cannot delete own account")
	ErrConcurrentModification = errors.New("user was modified concurrently")
	ErrNotFound               = errors.New("user not found")
	ErrEditInProgress         = errors.New("user is being edited by another actor")
	ErrForbidden              = errors.New("admin access required")
	ErrInvalidState           = errors.New("action not allowed in current session state")
	ErrInvalidToken           = errors.New("invalid or expired token")
)

// ValidationError reports a missing or invalid field. The record is left
// unchanged.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is invalid", e.Field)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func missing(field Field) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

func notEditable(field Field) *ValidationError {
	return &ValidationError{Field: field, Reason: "is not editable"}
}

// KeyParseError wraps a failure to read PGP key material.
type KeyParseError struct {
	Err error
}

func (e *KeyParseError) Error() string {
	return fmt.Sprintf("invalid pgp key: %v", e.Err)
}

func (e *KeyParseError) Unwrap() error {
	return e.Err
}
