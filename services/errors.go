package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindStateConflict      ErrorKind = "state_conflict"
	KindNotFound           ErrorKind = "not_found"
	KindPolicyViolation    ErrorKind = "policy_violation"
	KindExternalDependency ErrorKind = "external_dependency"
)

// AppError is the error type every service returns for expected failures.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(msg string) error {
	return &AppError{Kind: KindValidation, Message: msg}
}

func NewStateConflictError(msg string) error {
	return &AppError{Kind: KindStateConflict, Message: msg}
}

func NewNotFoundError(msg string) error {
	return &AppError{Kind: KindNotFound, Message: msg}
}

func NewPolicyViolation(msg string) error {
	return &AppError{Kind: KindPolicyViolation, Message: msg}
}

func NewExternalDependencyError(msg string, err error) error {
	return &AppError{Kind: KindExternalDependency, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" for unexpected errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
