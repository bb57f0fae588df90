// Package event wraps long-running engine operations with structured
// before/after/error events suitable for streaming to clients.
//
// The contract per wrapped operation: exactly one "before" event, then
// exactly one of "after" or "error" - never both. Log and artifact events
// may be interleaved between them. Publication failures never fail the
// wrapped operation.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind tags an event for stream consumers.
type Kind string

// Event kinds.
const (
	KindBefore   Kind = "before"
	KindAfter    Kind = "after"
	KindError    Kind = "error"
	KindLog      Kind = "log"
	KindArtifact Kind = "artifact"
)

// Event is one discrete, independently-encodable stream element.
// Consumers process events one at a time without buffering the stream.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Kind is the event kind tag.
	Kind Kind `json:"kind"`

	// Operation identifies the wrapped operation ("run", "vertex.build").
	Operation string `json:"operation"`

	// RunID and VertexID locate the event within a run.
	RunID    string `json:"run_id,omitempty"`
	VertexID string `json:"vertex_id,omitempty"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`

	// Payload carries operation inputs (before), outputs (after), an
	// error summary (error), or a log line / artifact.
	Payload any `json:"payload,omitempty"`
}

// Option configures event creation.
type Option func(*Event)

// WithID sets a specific event id (default: auto-generated UUID).
func WithID(id string) Option {
	return func(e *Event) { e.ID = id }
}

// WithRunID sets the run identity.
func WithRunID(runID string) Option {
	return func(e *Event) { e.RunID = runID }
}

// WithVertexID sets the vertex identity.
func WithVertexID(vertexID string) Option {
	return func(e *Event) { e.VertexID = vertexID }
}

// WithTimestamp sets a specific timestamp (default: time.Now).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.Timestamp = t }
}

// New creates an event.
func New(kind Kind, operation string, payload any, opts ...Option) Event {
	e := Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Operation: operation,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Encode serializes the event as a single JSON object.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ErrorPayload is the payload shape of an error event: a short message,
// an optional suggestion, and the original error for diagnostics.
type ErrorPayload struct {
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Cause      string `json:"cause,omitempty"`
}
