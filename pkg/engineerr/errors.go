// Package engineerr defines the shared error taxonomy used at every
// component boundary of the engine: the event log, the task queue, the
// worker registry, and the turn loop runtime all translate failures into
// one of these classes so callers can make retry/backoff/alert decisions
// without knowing which component raised the error.
package engineerr

import (
	"errors"
	"fmt"
)

// Class is one of the seven error classes a component boundary may return.
type Class string

const (
	// InputInvalid means the caller supplied a malformed or semantically
	// invalid request. Retrying without changing the input will not help.
	InputInvalid Class = "input_invalid"

	// NotFound means the referenced entity (session, task, worker, ...)
	// does not exist or is not visible to the caller.
	NotFound Class = "not_found"

	// Conflict means the operation lost a race against another writer —
	// an optimistic-concurrency check failed, a unique constraint was
	// violated, or a state transition is no longer valid from the
	// entity's current state.
	Conflict Class = "conflict"

	// Transient means the failure is expected to clear on its own —
	// a dependency timed out, a connection was reset. Safe to retry with
	// backoff.
	Transient Class = "transient"

	// CircuitOpen means a circuit breaker guarding an external dependency
	// is open; the caller should not retry until it closes or half-opens.
	CircuitOpen Class = "circuit_open"

	// Permanent means retrying will never succeed — the task itself is
	// unprocessable (e.g. a tool rejected its arguments after validation
	// passed). A task failing with this class moves straight to failed,
	// with no dead-letter entry.
	Permanent Class = "permanent"

	// Internal means the engine itself is broken — a programming error,
	// an invariant violation, a corrupted read. Always worth alerting on.
	Internal Class = "internal"
)

// Error is the concrete error type every component boundary returns.
// It wraps an underlying cause and tags it with a Class so callers can
// type-switch via errors.As without parsing error strings.
type Error struct {
	Class   Class
	Op      string // the operation that failed, e.g. "queue.Claim"
	Cause   error
	Message string // human-readable detail, independent of Cause
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, target) match any *Error target of the same
// Class, comparing classes rather than identity. Use ClassOf to test
// against a bare Class value.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Class == other.Class
	}
	return false
}

// New constructs a classed Error.
func New(class Class, op, message string, cause error) *Error {
	return &Error{Class: class, Op: op, Cause: cause, Message: message}
}

func Invalid(op, message string, cause error) *Error    { return New(InputInvalid, op, message, cause) }
func NotFoundErr(op, message string, cause error) *Error { return New(NotFound, op, message, cause) }
func ConflictErr(op, message string, cause error) *Error { return New(Conflict, op, message, cause) }
func TransientErr(op, message string, cause error) *Error {
	return New(Transient, op, message, cause)
}
func CircuitOpenErr(op, message string, cause error) *Error {
	return New(CircuitOpen, op, message, cause)
}
func PermanentErr(op, message string, cause error) *Error {
	return New(Permanent, op, message, cause)
}
func InternalErr(op, message string, cause error) *Error {
	return New(Internal, op, message, cause)
}

// ClassOf returns the Class of err if it is (or wraps) an *Error, and
// Internal otherwise — an un-classed error reaching a component boundary
// is itself treated as an internal defect.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return Internal
}

// Retryable reports whether a caller should retry the operation that
// produced err, with backoff. Transient and CircuitOpen are retryable in
// the sense that the caller should requeue the task; CircuitOpen additionally
// tells the caller to wait at least until the breaker's next probe.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case Transient, CircuitOpen:
		return true
	default:
		return false
	}
}
