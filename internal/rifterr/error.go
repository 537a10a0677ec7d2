// Package rifterr defines the taxonomy of errors that flow through the
// core: every handler, store call and dispatcher step returns one of
// these kinds so that call sites can branch on policy (Busy vs Upstream
// inside an Update log, auth kinds mapping to HTTP status) without
// string-matching error text.
package rifterr

import (
	"errors"
	"fmt"
)

// Kind is the taxonomic error kind a core operation can fail with.
type Kind string

const (
	KindAuthMissing     Kind = "auth_missing"
	KindAuthInvalid     Kind = "auth_invalid"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound        Kind = "not_found"
	KindAlreadyExists   Kind = "already_exists"
	KindInvalidConfig   Kind = "invalid_config"
	KindBusy            Kind = "busy"
	KindUpstream        Kind = "upstream"
	KindStorage         Kind = "storage"
	KindInternal        Kind = "internal"
)

// httpStatus is the default HTTP status for a kind, used by the HTTP
// surface when translating a pure read/write error into a response.
var httpStatus = map[Kind]int{
	KindAuthMissing:      401,
	KindAuthInvalid:      401,
	KindPermissionDenied: 403,
	KindNotFound:         404,
	KindAlreadyExists:    409,
	KindInvalidConfig:    400,
	KindBusy:             409,
	KindUpstream:         502,
	KindStorage:          500,
	KindInternal:         500,
}

// Error is the concrete error type produced by core operations.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code this error kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return 500
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// is not (or does not wrap) a *rifterr.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
