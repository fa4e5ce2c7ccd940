// Package store is the interface to a persistence layer for raw fetched
// payloads, keyed by the URL they were fetched from.
package store

import (
	"errors"
	"io"
)

// ErrNotFound is returned by Get for a key that is not stored.
var ErrNotFound = errors.New("payload not found")

// I is a persistence layer for fetched payloads. Payload URLs carry their
// epoch so a stored value never changes for its key.
type I interface {
	Initializer
	Pather
	// Closer must be called after you're done using the store, to free up resources
	// and so on.
	io.Closer
	Nukener
	Getter
	Putter
	Deleter
	Counter
	Syncer
}

type Initializer interface {
	// Init opens the store at path. Implementations without files ignore it.
	Init(path st) (err er)
}

type Pather interface {
	// Path returns the directory of the database.
	Path() (s st)
}

type Nukener interface {
	// Nuke deletes everything in the database.
	Nuke() (err er)
}

type Getter interface {
	// Get returns the payload stored under key, or ErrNotFound.
	Get(c cx, key st) (val by, err er)
}

type Putter interface {
	// Put stores val under key, replacing any previous value.
	Put(c cx, key st, val by) (err er)
}

type Deleter interface {
	// Delete removes key. Deleting an absent key is not an error.
	Delete(c cx, key st) (err er)
}

type Counter interface {
	// Count returns the number of payloads and their total size in bytes.
	Count(c cx) (count no, size int64, err er)
}

type Syncer interface {
	// Sync signals the store to flush its buffers.
	Sync() (err er)
}
