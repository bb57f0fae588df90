// Package session caches constructed graphs across requests.
//
// Entries are keyed by session id plus the content hash of the flow payload,
// so any edit to the flow produces a fresh key and the cache never serves a
// graph built from stale structure. The Service layer guarantees at most one
// concurrent construction per key.
package session

import (
	"context"
	"errors"

	"github.com/flowrun/flowrun/pkg/flowrun"
)

// Entry is one cached session: the constructed graph together with the
// payload it was built from and the artifacts accumulated so far.
type Entry struct {
	// Graph is the live constructed graph.
	Graph *flowrun.Graph

	// Payload is the flow payload the graph was built from. Serializing
	// backends persist this and rebuild the graph on read.
	Payload *flowrun.FlowPayload

	// FlowID and UserID restore graph identity on rebuild.
	FlowID string
	UserID string

	// Artifacts accumulate across builds within the session.
	Artifacts map[string]any
}

// Store is a session cache backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the cached entry for a key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores an entry under a key, replacing any existing entry.
	Set(ctx context.Context, key string, e *Entry) error

	// Delete removes an entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Sentinel errors for session cache operations.
var (
	// ErrNotFound indicates no entry exists for the key.
	ErrNotFound = errors.New("session entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("session store closed")

	// ErrNilEntry indicates a Set with a nil entry.
	ErrNilEntry = errors.New("nil session entry")
)
