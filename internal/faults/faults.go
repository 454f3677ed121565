// Package faults defines the closed set of failure kinds raised by the pattern
// store, loader, writer and sync engine, so callers can branch on the cause
// without inspecting error strings.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that carry no kind.
	KindUnknown Kind = iota
	// TransientIO is a momentarily locked or unavailable file.
	TransientIO
	// MalformedInput is a file with the wrong dimensions or an unreadable format.
	MalformedInput
	// AllocationExhausted means tag probing wrapped around with no free slot.
	AllocationExhausted
	// Persistence means a save could not be completed (temp file lost).
	Persistence
	// PersistenceConflict means the destination could not be replaced because
	// another writer holds it.
	PersistenceConflict
	// InvariantViolation means a store detected dual-index divergence.
	InvariantViolation
)

// String returns the string representation of a kind
func (k Kind) String() string {
	switch k {
	case TransientIO:
		return "transient_io"
	case MalformedInput:
		return "malformed_input"
	case AllocationExhausted:
		return "allocation_exhausted"
	case Persistence:
		return "persistence"
	case PersistenceConflict:
		return "persistence_conflict"
	case InvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its kind, the operation that raised it and
// the path it concerns.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New creates an Error.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Newf creates an Error whose cause is a formatted message.
func Newf(kind Kind, op, path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
