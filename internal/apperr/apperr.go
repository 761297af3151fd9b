// Package apperr tags errors with a kind so callers and transports can
// react to the category of a failure without matching message strings.
package apperr

import (
	"context"
	"errors"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// Error carries a Kind plus a caller-facing message. Err is usually a
// package sentinel (e.g. domain.ErrInvalidName) so errors.Is keeps working.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the machine-readable code of the wrapped error.
func (e *Error) Code() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func New(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(err error) *Error {
	return &Error{Kind: KindValidation, Err: err}
}

func Conflict(err error, message string) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

func NotFound(err error) *Error {
	return &Error{Kind: KindNotFound, Err: err}
}

// Upstream wraps a collaborator failure. It is reported as cancelled only
// when the caller's own context has ended; a deadline imposed by the
// collaborator itself stays an upstream failure.
func Upstream(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if callerDone(ctx) {
		return &Error{Kind: KindCancelled, Err: err}
	}
	return &Error{Kind: KindUpstream, Err: err}
}

// Storage classifies a persistence failure. Caller cancellation is surfaced
// as such, a driver-side timeout counts as internal and anything else is
// returned untouched.
func Storage(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if callerDone(ctx) {
		return &Error{Kind: KindCancelled, Err: err}
	}
	if isContextErr(err) {
		return &Error{Kind: KindInternal, Err: err}
	}
	return err
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err. Bare context errors count as cancelled,
// untagged errors as internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	if isContextErr(err) {
		return KindCancelled
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func callerDone(ctx context.Context) bool {
	return ctx != nil && ctx.Err() != nil
}
