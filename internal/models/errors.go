package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("activity does not exist")
	ErrRecordNotFound      = errors.New("record does not exist")
	ErrInvalidState        = errors.New("activity is not accepting submissions")
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateSubmission = errors.New("already submitted")
	ErrVerifyCodeRequired  = errors.New("verify code is required to change an existing submission")
	ErrInvalidVerifyCode   = errors.New("verify code does not match")
	ErrInvalidOption       = errors.New("option does not exist")
	ErrCardinality         = errors.New("wrong number of selected options")
	ErrDrawLimitExceeded   = errors.New("no draws left")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Missing is the ValidationError for a required field that was left empty.
func Missing(field string) *ValidationError {
	return NewValidationError(field, "is required")
}
