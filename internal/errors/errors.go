// Package errors provides coded application errors shared by the service,
// repository and transport layers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an error for transport mapping.
type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeForbidden     ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeUnprocessable ErrorCode = "UNPROCESSABLE"
	ErrCodeInternal      ErrorCode = "INTERNAL"
)

// AppError is an error carrying a code, an optional machine-readable reason
// and an optional offending field.
type AppError struct {
	Code    ErrorCode
	Reason  string
	Message string
	Field   string
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithReason returns a copy of e tagged with a stable reason string.
func (e *AppError) WithReason(reason string) *AppError {
	cp := *e
	cp.Reason = reason
	return &cp
}

// New creates an AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Reason:  "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// InvalidInput reports a bad request field.
func InvalidInput(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Reason:  "INVALID_INPUT",
		Message: message,
		Field:   field,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// CodeOf returns the code of the outermost AppError in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// ReasonOf returns the first non-empty reason in err's chain.
func ReasonOf(err error) string {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return ""
		}
		if appErr.Reason != "" {
			return appErr.Reason
		}
		err = appErr.Err
	}
	return ""
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput, ErrCodeUnprocessable:
		return http.StatusUnprocessableEntity
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
