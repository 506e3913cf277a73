package api

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories surfaced by the client.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindAuth            Kind = "auth"
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindServer          Kind = "server"
	KindNetwork         Kind = "network"
	KindUnknown         Kind = "unknown"
)

// Error is the structured failure returned by every remote operation.
// Message is always human-readable: the server-provided message when the
// response carried one, otherwise the per-operation fallback.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s %d)", e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind classifies any error into a Kind. Non-*Error values map to
// KindUnknown.
func ErrorKind(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if err != nil {
		return KindUnknown
	}
	return ""
}

// Message extracts the human-readable message, falling back to Error() for
// foreign errors and to fallback for nil messages.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

func IsUnauthenticated(err error) bool { return ErrorKind(err) == KindUnauthenticated }
func IsAuth(err error) bool            { return ErrorKind(err) == KindAuth }
func IsValidation(err error) bool      { return ErrorKind(err) == KindValidation }
func IsNotFound(err error) bool        { return ErrorKind(err) == KindNotFound }
func IsServer(err error) bool          { return ErrorKind(err) == KindServer }
func IsNetwork(err error) bool         { return ErrorKind(err) == KindNetwork }

// Unauthenticated builds the fail-fast error used when no token is available
// before a call is attempted.
func Unauthenticated(message string) *Error {
	if message == "" {
		message = "Not authenticated"
	}
	return &Error{Kind: KindUnauthenticated, Message: message}
}
