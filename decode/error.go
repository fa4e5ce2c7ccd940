// Package decode unpacks the compact byte streams of bulk and node messages
// into geometry and metadata. Everything here is a pure function of its
// inputs: no I/O, no shared mutable state, safe to call from any number of
// goroutines. Corrupt input is always reported as an *Error, values are never
// clamped into range.
package decode

import (
	"errors"
	"fmt"

	"rocktree.lol/varint"
)

// Kind classifies a decode failure.
type Kind int

const (
	Truncated Kind = iota + 1
	Overflow
	OutOfRange
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Truncated:
		return "truncated"
	case Overflow:
		return "overflow"
	case OutOfRange:
		return "out of range"
	case Malformed:
		return "malformed"
	}
	return "unknown"
}

// Error reports where and why a packed field could not be decoded.
type Error struct {
	Kind    Kind
	Offset  int
	Context string
	Detail  string
}

func (e *Error) Error() string {
	s := fmt.Sprintf("decode %s: %s at byte %d", e.Context, e.Kind, e.Offset)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}

// Is matches another *Error of the same Kind, so errors.Is(err,
// &Error{Kind: Truncated}) works without caring about the location.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Context == "" || t.Context == e.Context)
}

func fail(k Kind, ctx string, off int, format string, a ...any) *Error {
	return &Error{Kind: k, Offset: off, Context: ctx, Detail: fmt.Sprintf(format, a...)}
}

// varintError converts a varint read failure into an *Error.
func varintError(err error, ctx string, off int) *Error {
	if errors.Is(err, varint.ErrTruncated) {
		return &Error{Kind: Truncated, Offset: off, Context: ctx, Detail: "varint"}
	}
	return &Error{Kind: Overflow, Offset: off, Context: ctx, Detail: "varint"}
}
