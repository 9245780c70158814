package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrAuthorization
	ErrConflict
	ErrTransient
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewValidation(message string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
	}
}

func NewAuthorization(message string) *AppError {
	return &AppError{
		Code:    ErrAuthorization,
		Message: message,
	}
}

// NewConflict builds a conflict error. Details should carry enough
// information for the caller to offer a corrective action, e.g. a list of
// alternative slot times or the blocking appointment's validity window.
func NewConflict(message string, details interface{}) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Details: details,
	}
}

func NewTransient(message string, err error) *AppError {
	return &AppError{
		Code:    ErrTransient,
		Message: message,
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func Validation(message string) *AppError {
	return NewValidation(message)
}

func Conflict(message string, details interface{}) *AppError {
	return NewConflict(message, details)
}

// CodeOf returns the ErrorCode of err if it wraps an AppError, ErrTransient otherwise.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrTransient
}

func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsConflict(err error) bool      { return IsCode(err, ErrConflict) }
func IsValidation(err error) bool    { return IsCode(err, ErrValidation) }
func IsNotFound(err error) bool      { return IsCode(err, ErrNotFound) }
func IsAuthorization(err error) bool { return IsCode(err, ErrAuthorization) }
