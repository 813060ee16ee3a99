package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a breader error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrCanceled       ErrorCode = "CANCELED"        // 409 (request will never run)
	ErrPrecondition   ErrorCode = "PRECONDITION"    // 422 (malformed alignment input)
	ErrBackend        ErrorCode = "BACKEND"         // 502
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// BreaderError represents a structured error with code, status, and details.
type BreaderError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *BreaderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *BreaderError {
	return &BreaderError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing card, session or file.
func NewNotFound(identifier string) *BreaderError {
	return &BreaderError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewCanceled creates the terminal outcome of a request that was canceled
// before it produced a result.
func NewCanceled(seq uint64) *BreaderError {
	return &BreaderError{
		Code:    ErrCanceled,
		Status:  409,
		Message: fmt.Sprintf("request %d canceled", seq),
		Details: map[string]any{"seq": seq},
	}
}

// NewPrecondition creates a 422 error for malformed input handed to the
// alignment engine. These are programmer errors.
func NewPrecondition(format string, args ...any) *BreaderError {
	return &BreaderError{
		Code:    ErrPrecondition,
		Status:  422,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewBackend creates a 502 error carrying the backend's human-readable message.
func NewBackend(backend string, err error) *BreaderError {
	msg := "backend error"
	if err != nil {
		msg = err.Error()
	}
	return &BreaderError{
		Code:    ErrBackend,
		Status:  502,
		Message: msg,
		Details: map[string]any{"backend": backend},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *BreaderError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BreaderError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if err is, or wraps, a BreaderError with the given code.
func Is(err error, code ErrorCode) bool {
	var bErr *BreaderError
	if stderrors.As(err, &bErr) {
		return bErr.Code == code
	}
	return false
}

// As returns the BreaderError in err's chain, wrapping anything else as internal.
func As(err error) *BreaderError {
	var bErr *BreaderError
	if stderrors.As(err, &bErr) {
		return bErr
	}
	return NewInternal(err)
}
