// Package errs is the structured error vocabulary shared by every engine.
// Engines never swallow a settlement error: they construct one of these at
// the point of failure and the caller rolls the enclosing transaction back.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed set of error categories. Transport layers (out of
// scope here) map these to status codes; engines only ever deal in Kind.
type Kind string

const (
	NotFound          Kind = "not_found"
	StateInvalid      Kind = "state_invalid"
	Validation        Kind = "validation"
	InsufficientFunds Kind = "insufficient_funds"
	CapacityExceeded  Kind = "capacity_exceeded"
	DuplicateBooking  Kind = "duplicate_booking"
	OverlapBooking    Kind = "overlap_booking"
	QuotaExceeded     Kind = "quota_exceeded"
	Conflict          Kind = "conflict"
	Timeout           Kind = "timeout"
	Internal          Kind = "internal"
)

// Error is the concrete error type every engine returns for a domain
// failure. It wraps an optional cause so errors.Unwrap chains work.
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

// Is lets callers write errors.Is(err, errs.ErrNotFound) by comparing Kind
// against a sentinel constructed with that Kind and no message.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf reports the Kind of err, or Internal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}

// sentinel values so errors.Is(err, errs.ErrNotFound) reads naturally even
// though NotFound above is a Kind, not an error — these are the error-typed
// counterparts used purely as comparison targets.
var (
	ErrNotFound          = &Error{Kind: NotFound}
	ErrStateInvalid      = &Error{Kind: StateInvalid}
	ErrValidation        = &Error{Kind: Validation}
	ErrInsufficientFunds = &Error{Kind: InsufficientFunds}
	ErrCapacityExceeded  = &Error{Kind: CapacityExceeded}
	ErrDuplicateBooking  = &Error{Kind: DuplicateBooking}
	ErrOverlapBooking    = &Error{Kind: OverlapBooking}
	ErrQuotaExceeded     = &Error{Kind: QuotaExceeded}
	ErrConflict          = &Error{Kind: Conflict}
	ErrTimeout           = &Error{Kind: Timeout}
	ErrInternal          = &Error{Kind: Internal}
)
