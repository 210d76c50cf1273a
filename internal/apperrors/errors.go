// Package apperrors provides the structured error codes surfaced by the event service.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code returned to API callers.
type Code string

const (
	CodeUnknown        Code = "internal_error"
	CodeValidation     Code = "validation_error"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeProcessing     Code = "processing_error"
	CodeDelivery       Code = "delivery_error"
	CodeInfrastructure Code = "infrastructure_error"
)

// Error is the domain error type carrying a code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks by code.
var (
	ErrValidation     = &Error{Code: CodeValidation}
	ErrNotFound       = &Error{Code: CodeNotFound}
	ErrConflict       = &Error{Code: CodeConflict}
	ErrProcessing     = &Error{Code: CodeProcessing}
	ErrDelivery       = &Error{Code: CodeDelivery}
	ErrInfrastructure = &Error{Code: CodeInfrastructure}
)

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, fmt.Sprintf(format, args...))
}

func Processing(message string, cause error) *Error {
	return Wrap(CodeProcessing, message, cause)
}

func Delivery(message string, cause error) *Error {
	return Wrap(CodeDelivery, message, cause)
}

func Infrastructure(message string, cause error) *Error {
	return Wrap(CodeInfrastructure, message, cause)
}

// CodeOf extracts the code of the first *Error in the chain.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// HTTPStatus maps a code to the HTTP status used by the API.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
