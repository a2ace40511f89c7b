package shipping

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeNotConnected        = "NOT_CONNECTED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
)

// Error represents a shipping failure in terms callers can act on.
type Error struct {
	Carrier    string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := "shipping"
	if e.Carrier != "" {
		prefix = e.Carrier
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", prefix, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", prefix, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error.
func NewError(carrier, code, message string) *Error {
	return &Error{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatusCode adds the provider's HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Sentinels for errors.Is checks; matching is by code.
var (
	ErrInvalidRequest      = NewError("", CodeInvalidRequest, "invalid request")
	ErrNotConnected        = NewError("", CodeNotConnected, "carrier not connected")
	ErrUnauthorized        = NewError("", CodeUnauthorized, "carrier rejected credentials")
	ErrProviderUnavailable = NewError("", CodeProviderUnavailable, "carrier unavailable")
)

func invalid(format string, args ...any) *Error {
	return NewError("", CodeInvalidRequest, fmt.Sprintf(format, args...))
}

// CodeOf returns the shipping error code of err, or "" when err is not a shipping error.
func CodeOf(err error) string {
	var shipErr *Error
	if errors.As(err, &shipErr) {
		return shipErr.Code
	}
	return ""
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var shipErr *Error
	if errors.As(err, &shipErr) {
		return shipErr.Retryable
	}
	return false
}
