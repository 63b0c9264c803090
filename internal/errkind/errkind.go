// Package errkind classifies the error taxonomy shared by every subsystem:
// secret store, registry client, lifecycle manager, OAuth manager, chat
// core. Callers distinguish kinds with errors.Is against the sentinel
// Kind values; wrapped context is added with errkind.Wrap.
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a taxonomy bucket, not a specific error. Compare with errors.Is.
type Kind string

const (
	NotFound  Kind = "not_found"
	Auth      Kind = "auth"
	Network   Kind = "network"
	Protocol  Kind = "protocol"
	Busy      Kind = "busy"
	Cancelled Kind = "cancelled"
	IO        Kind = "io"
	Internal  Kind = "internal"
)

// Error pairs a Kind with a message and optional wrapped cause.
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

// Is reports whether target is the same Kind, so errors.Is(err, errkind.NotFound)
// works directly on a bare Kind value.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// Error lets a Kind itself satisfy the error interface so call sites can
// write `return errkind.NotFound` for the simplest cases.
func (k Kind) Error() string { return string(k) }

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message context to an existing cause.
func Wrap(cause error, kind Kind, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// Of reports the Kind carried by err, defaulting to Internal when err does
// not wrap a *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
