package utils

import (
	"errors"
	"fmt"
	"runtime"
)

// AppError represents an application error with context
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	File       string `json:"-"`
	Line       int    `json:"-"`
	StackTrace string `json:"-"`
	cause      error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates a new application error
func NewAppError(code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	return err
}

// WrapAppError creates an application error that keeps cause in its chain
func WrapAppError(code, message string, cause error) *AppError {
	_, file, line, _ := runtime.Caller(1)
	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
		cause:   cause,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// WithStackTrace adds stack trace to the error
func (e *AppError) WithStackTrace() *AppError {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	e.StackTrace = string(buf[:n])
	return e
}

// ErrorCode returns the AppError code found in err's chain, or ErrCodeInternal
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Common error codes
const (
	ErrCodeConnection       = "CONNECTION_ERROR"
	ErrCodeDatabase         = "DATABASE_ERROR"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeBlockchain       = "BLOCKCHAIN_ERROR"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeProcessing       = "PROCESSING_ERROR"
	ErrCodeUnsupportedChain = "UNSUPPORTED_CHAIN"
	ErrCodeInvalidAddress   = "INVALID_ADDRESS"
	ErrCodeConflict         = "CONFLICT"
)
