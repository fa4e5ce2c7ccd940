// Package context shortens the names of the stdlib context package so that
// signatures across the fetch pipeline stay on one line.
package context

import (
	"context"
	"time"
)

type (
	// T is a context.Context.
	T = context.Context
	// F is a cancel function.
	F = context.CancelFunc
)

var (
	Canceled         = context.Canceled
	DeadlineExceeded = context.DeadlineExceeded
)

// Bg returns the background context.
func Bg() T { return context.Background() }

// Cancel returns a child of c and its cancel function.
func Cancel(c T) (T, F) { return context.WithCancel(c) }

// Timeout returns a child of c that expires after d.
func Timeout(c T, d time.Duration) (T, F) { return context.WithTimeout(c, d) }

// Value returns a child of c carrying v under k.
func Value(c T, k, v any) T { return context.WithValue(c, k, v) }

// Detach returns a context carrying the values of c that is never canceled
// with it.
func Detach(c T) T { return context.WithoutCancel(c) }
