// Package apperrors defines the error taxonomy surfaced by the HTTP layer.
// Services return errors built from these kinds; the handler maps each kind to
// exactly one status code.
package apperrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	// KindInternal is the fallback for unexpected faults. Detail is logged
	// server-side only.
	KindInternal Kind = iota
	// KindValidation covers malformed or out-of-range input.
	KindValidation
	// KindNotFound covers references to absent entities.
	KindNotFound
	// KindAuth covers missing, invalid, or expired credentials.
	KindAuth
	// KindForbidden covers authenticated but unpermitted access.
	KindForbidden
	// KindGateway covers a capture the payment provider declined.
	KindGateway
	// KindIndeterminate covers a capture whose outcome is unknown (timeout or
	// transport fault after the request may have reached the provider).
	KindIndeterminate
	// KindConflict covers uniqueness violations such as a duplicate email.
	KindConflict
)

// Error carries a kind and a client-safe message alongside the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an error of the given kind with a formatted client-safe message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and client-safe message to an underlying error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation is shorthand for a KindValidation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// NotFound is shorthand for a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Forbidden is shorthand for a KindForbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err. Internal errors always
// map to a generic message so server detail never leaks.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "Internal server error"
}

// HTTPStatus maps an error kind to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindGateway, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth, KindForbidden:
		return http.StatusForbidden
	case KindIndeterminate:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
