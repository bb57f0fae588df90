// Package component defines the pluggable unit of behavior executed by a
// vertex: a Component with declared input/output sockets, and a registry
// mapping type names to constructors.
package component

import (
	"context"
)

// Socket type tags. TypeAny is the universal tag: it is compatible with
// every other tag on either side of an edge.
const (
	TypeAny     = "any"
	TypeText    = "text"
	TypeMessage = "message"
	TypeNumber  = "number"
	TypeBool    = "bool"
	TypeObject  = "object"
)

// Compatible reports whether a value of type from may flow into a socket of
// type to. Empty tags are treated as TypeAny.
func Compatible(from, to string) bool {
	if from == "" || to == "" || from == TypeAny || to == TypeAny {
		return true
	}
	return from == to
}

// Input describes one named input socket.
type Input struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Output describes one named output socket.
type Output struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Meta describes a component's sockets.
type Meta struct {
	// Type is the registered component type name.
	Type string `json:"type"`

	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// Output returns the output socket with the given name.
func (m Meta) Output(name string) (Output, bool) {
	for _, o := range m.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

// Input returns the input socket with the given name.
func (m Meta) Input(name string) (Input, bool) {
	for _, i := range m.Inputs {
		if i.Name == name {
			return i, true
		}
	}
	return Input{}, false
}

// Result is the product of one component build.
type Result struct {
	// Outputs maps output socket names to produced values.
	Outputs map[string]any

	// Artifacts are structured byproducts distinct from the outputs.
	Artifacts map[string]any

	// Logs are human-readable build log lines, streamed to the caller.
	Logs []string

	// Rerun requests another scheduler pass over this vertex and its
	// dependents. Used by loop components; bounded by the runner.
	Rerun bool

	// ActiveOutputs restricts which output sockets carry data this pass.
	// Nil means all outputs are active. Used by router components:
	// dependents reachable only through inactive outputs are not built.
	ActiveOutputs []string

	// Notify names a state slot this build wrote, flagging listeners on
	// that slot for re-execution.
	Notify string
}

// Component is one pluggable unit of behavior.
// Build may block on I/O; implementations must honor ctx cancellation.
type Component interface {
	// Meta describes the component's input and output sockets.
	Meta() Meta

	// Build produces the component's outputs from resolved inputs.
	Build(ctx context.Context, inputs map[string]any) (Result, error)
}

// Resettable components carry internal per-run state (loop pass counters)
// that must clear before the owning graph runs again.
type Resettable interface {
	Reset()
}

// StateStore gives state-aware components access to the graph's named
// context slots (the Notify/Listen mechanism).
type StateStore interface {
	SetState(name string, value any)
	GetState(name string) (any, bool)
}

// StateAware components receive the owning graph's state store after
// construction.
type StateAware interface {
	BindState(store StateStore)
}
