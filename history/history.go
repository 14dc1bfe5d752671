// Package history keeps the inputs committed in a session, newest last.
package history

import (
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history store is closed")

// Entry is a single committed input and what it produced.
type Entry struct {
	ID      int64     `json:"id"`
	Session string    `json:"session"`
	Input   string    `json:"input"`
	Output  string    `json:"output"`
	Failed  bool      `json:"failed"`
	At      time.Time `json:"at"`
}

// Store is the interface for history backends.
type Store interface {
	// Append records an entry. The ID field is assigned by the store.
	Append(e Entry) error
	// Recent returns at most limit entries, oldest first. A limit of 0 or
	// less returns everything.
	Recent(limit int) ([]Entry, error)
	Clear() error
	Close() error
}
