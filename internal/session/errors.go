package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected or degraded session event.
type ErrorKind string

const (
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	KindDuplicateImage         ErrorKind = "duplicate_image"
	KindPreconditionFailed     ErrorKind = "precondition_failed"
	KindExternalServiceFailure ErrorKind = "external_service_failure"
)

// Error is returned for every rejected event.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("session %s: %s", e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind satisfies the classifier interface used by the API layer.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// KindOf extracts the kind from err, or "" when err is not a session error.
func KindOf(err error) ErrorKind {
	var sessionErr *Error
	if errors.As(err, &sessionErr) {
		return sessionErr.Kind
	}
	return ""
}

func newError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}
