// Package buildlog provides retention-bounded persistence for vertex build
// records.
//
// Retention is enforced two ways simultaneously: a per-vertex cap (keep the
// N most recent builds for a vertex id) and a global cap (keep the N most
// recent builds across the flow). Both are enforced transactionally with
// the insert, so a crash can never leave the log violating either cap.
package buildlog

import (
	"context"
	"errors"
	"time"
)

// DefaultListLimit caps ListBuilds results when the caller passes no limit.
const DefaultListLimit = 1000

// Entry is one vertex build record.
type Entry struct {
	// BuildID uniquely identifies the build.
	BuildID string `json:"build_id"`

	// FlowID is the owning flow.
	FlowID string `json:"flow_id"`

	// VertexID is the built vertex.
	VertexID string `json:"vertex_id"`

	// Timestamp is when the build completed.
	Timestamp time.Time `json:"timestamp"`

	// Data holds the build outputs.
	Data map[string]any `json:"data,omitempty"`

	// Params holds the resolved build parameters.
	Params map[string]any `json:"params,omitempty"`

	// Artifacts holds the build's structured byproducts.
	Artifacts map[string]any `json:"artifacts,omitempty"`

	// Valid is false for failed builds.
	Valid bool `json:"valid"`

	// Error is the captured failure message for invalid builds.
	Error string `json:"error,omitempty"`
}

// Caps are the retention bounds a store enforces at insert time.
type Caps struct {
	// MaxBuildsPerVertex caps rows per (flow id, vertex id).
	MaxBuildsPerVertex int

	// MaxBuildsToKeep caps rows per flow id.
	MaxBuildsToKeep int
}

// Store persists vertex build records.
// Implementations must be safe for concurrent use and must enforce the
// retention caps atomically with each insert.
type Store interface {
	// LogVertexBuild appends a record and prunes rows beyond the caps,
	// all in one transaction. Returns the number of rows pruned.
	LogVertexBuild(ctx context.Context, e *Entry) (pruned int64, err error)

	// ListBuilds returns builds for a flow, most recent first.
	// A limit <= 0 applies DefaultListLimit.
	ListBuilds(ctx context.Context, flowID string, limit int) ([]*Entry, error)

	// DeleteBuilds removes all builds for a flow.
	DeleteBuilds(ctx context.Context, flowID string) error

	// Close releases any resources.
	Close() error
}

// Sentinel errors for build log operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("build log store closed")

	// ErrInvalidEntry indicates a record missing required identity fields.
	ErrInvalidEntry = errors.New("build log entry missing flow, vertex, or build id")
)
