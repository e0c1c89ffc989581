// Package syncerr defines the structured errors reported when two patch
// queues cannot be reconciled automatically.
package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a reconciliation failure.
type Kind int

const (
	Other Kind = iota
	// InconsistentState means the two locations diverged before any
	// snapshot was recorded, so neither side can be trusted.
	InconsistentState
	// PatchConflict means a patch changed in both locations since the
	// last sync.
	PatchConflict
	// OrderAmbiguity means a new patch cannot be placed in the merged
	// series without guessing.
	OrderAmbiguity
	// ManifestConflict means the series files could not be merged.
	ManifestConflict
	// ToolFailure means the queue tool or the filesystem reported an error.
	ToolFailure
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case InconsistentState:
		return "inconsistent state"
	case PatchConflict:
		return "patch conflict"
	case OrderAmbiguity:
		return "order ambiguity"
	case ManifestConflict:
		return "series merge conflict"
	case ToolFailure:
		return "tool failure"
	}
	return "unknown kind"
}

// Op names the operation that failed, e.g. "reconcile.calculate".
type Op string

// Issue explains why a single patch could not be handled.
type Issue struct {
	Name   string
	Reason string
}

// Error is the error type returned by reconciliation and execution.
type Error struct {
	Op      Op
	Kind    Kind
	Patches []Issue
	Err     error
}

func (e *Error) Error() string {
	b := new(strings.Builder)
	if e.Op != "" {
		b.WriteString(string(e.Op))
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
	for _, p := range e.Patches {
		pad(b, "\n\t")
		b.WriteString(p.Name)
		if p.Reason != "" {
			b.WriteString(": ")
			b.WriteString(p.Reason)
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Names returns the filenames of the patches the error is about.
func (e *Error) Names() []string {
	names := make([]string, 0, len(e.Patches))
	for _, p := range e.Patches {
		names = append(names, p.Name)
	}
	return names
}

func pad(b *strings.Builder, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

// E builds an *Error from its arguments. Accepted types are Op, Kind,
// Issue, []Issue, error and string (used as the message).
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("syncerr.E must have at least one argument")
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case Issue:
			e.Patches = append(e.Patches, a)
		case []Issue:
			e.Patches = append(e.Patches, a...)
		case error:
			e.Err = a
		case string:
			e.Err = errors.New(a)
		default:
			panic(fmt.Errorf("unknown type %T for value %v in call to syncerr.E", a, a))
		}
	}
	return e
}

// Is reports whether err, or any error it wraps, is an *Error of the
// given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}
