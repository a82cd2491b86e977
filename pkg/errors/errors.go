package errors

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeConfig           = "CONFIG_ERROR"
	ErrCodeStreamRead       = "STREAM_READ_ERROR"
	ErrCodeRetryable        = "RETRYABLE_TRANSFER_ERROR"
	ErrCodeFatalTransfer    = "FATAL_TRANSFER_ERROR"
	ErrCodeResumeConflict   = "RESUME_CONFLICT_ERROR"
	ErrCodeIntegrity        = "INTEGRITY_ERROR"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
)

// AppError represents an application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new error
func New(code, message string) error {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new error with a formatted message
func Newf(code, format string, args ...interface{}) error {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a message
func Wrap(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, code, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// Code returns the code of the outermost AppError in err's chain,
// or ErrCodeInternal when the error did not originate here.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	for errors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
		appErr = nil
	}
	return false
}

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Common errors
var (
	ErrNotFound         = New(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = New(ErrCodeAlreadyExists, "resource already exists")
	ErrUnavailable      = New(ErrCodeUnavailable, "service unavailable")
	ErrPermissionDenied = New(ErrCodePermissionDenied, "permission denied")
)
