package flowrun

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/flowrun/flowrun/pkg/flowrun/component"
)

// VertexState is the per-run build state of a vertex.
type VertexState string

// Vertex build states. Success and Failed are terminal for a run, but a
// state vertex may be re-activated and rebuilt within the same run.
const (
	StatePending  VertexState = "pending"
	StateBuilding VertexState = "building"
	StateSuccess  VertexState = "success"
	StateFailed   VertexState = "failed"
	// StateSkipped marks vertices not built because an upstream failed.
	StateSkipped VertexState = "skipped"
	// StateInactive marks vertices on a router branch that did not fire.
	StateInactive VertexState = "inactive"
)

// Vertex wraps one component instance within a graph: its configuration,
// build state, and cached result. Vertices are created by FromPayload and
// share the owning graph's lifecycle.
type Vertex struct {
	// ID is unique within the owning graph.
	ID string

	// Type is the component class name.
	Type string

	// Params are literal input values from the node payload.
	Params map[string]any

	// IsState marks the vertex as externally re-activatable.
	IsState bool

	// StateName is the context slot a state vertex is keyed on.
	StateName string

	// TaskID is set when the build runs under an external task backend.
	TaskID string

	graph     *Graph
	component component.Component

	incoming []*Edge
	outgoing []*Edge

	state  VertexState
	result *ResultData
}

// State returns the vertex's current build state.
func (v *Vertex) State() VertexState { return v.state }

// Result returns the cached build result, or nil before the first build.
func (v *Vertex) Result() *ResultData { return v.result }

// Component returns the backing component instance.
func (v *Vertex) Component() component.Component { return v.component }

// IncomingEdges returns the vertex's incoming edges in payload order.
// Edge 0's source is the primary upstream: chat components use it to infer
// model identity.
func (v *Vertex) IncomingEdges() []*Edge { return v.incoming }

// OutgoingEdges returns the vertex's outgoing edges in payload order.
func (v *Vertex) OutgoingEdges() []*Edge { return v.outgoing }

// PrimaryUpstream returns the source vertex of the first incoming edge.
func (v *Vertex) PrimaryUpstream() (*Vertex, error) {
	if len(v.incoming) == 0 {
		return nil, &NotFoundError{Kind: "primary upstream of vertex", ID: v.ID}
	}
	return v.graph.Vertex(v.incoming[0].Source)
}

// reset returns the vertex to pending so it can be rebuilt (loop revisits,
// state re-activation). The cached result is kept until the next build
// overwrites it.
func (v *Vertex) reset() {
	v.state = StatePending
}

// resolveInputs assembles the component's input map: literal params first,
// then upstream outputs via incoming edges. Upstream values overwrite
// literals for the same socket.
//
// Inputs fed from an inactive upstream resolve to the literal param (or
// stay absent): a router's dead branch must not poison required-input
// checks for vertices that are themselves inactive and never built.
func (v *Vertex) resolveInputs() (map[string]any, error) {
	inputs := make(map[string]any, len(v.Params)+len(v.incoming))
	for k, val := range v.Params {
		inputs[k] = val
	}

	for _, e := range v.incoming {
		src, err := v.graph.Vertex(e.Source)
		if err != nil {
			return nil, err
		}
		// Dead edges resolve to the literal param: a router's unfired
		// branch must not fail a merge vertex that is still live through
		// another edge.
		if src.state == StateInactive {
			continue
		}
		if src.state == StateSuccess && src.result != nil &&
			src.result.ActiveOutputs != nil && !contains(src.result.ActiveOutputs, e.SourceOutput) {
			continue
		}
		if src.state != StateSuccess || src.result == nil {
			return nil, &VertexError{
				VertexID: v.ID,
				Op:       "resolve",
				Message:  fmt.Sprintf("upstream %s has no built output", e.Source),
				Err:      ErrMissingInput,
			}
		}
		val, ok := src.result.Outputs[e.SourceOutput]
		if !ok {
			return nil, &VertexError{
				VertexID: v.ID,
				Op:       "resolve",
				Message:  fmt.Sprintf("upstream %s produced no output %q", e.Source, e.SourceOutput),
				Err:      ErrMissingInput,
			}
		}
		inputs[e.TargetInput] = val
	}

	for _, in := range v.component.Meta().Inputs {
		if !in.Required {
			continue
		}
		if _, ok := inputs[in.Name]; !ok {
			return nil, &VertexError{
				VertexID: v.ID,
				Op:       "resolve",
				Message:  fmt.Sprintf("required input %q has no value", in.Name),
				Err:      ErrMissingInput,
			}
		}
	}

	return inputs, nil
}

// build resolves inputs and invokes the component, capturing the outcome as
// a ResultData record. Component errors and panics are captured at this
// boundary as (message, stack) pairs; they never propagate raw.
func (v *Vertex) build(ctx context.Context) (rec ResultData, res component.Result, err error) {
	rec = ResultData{
		VertexID:      v.ID,
		ComponentType: v.Type,
		BuildID:       uuid.New().String(),
	}

	if v.component == nil {
		verr := &VertexError{VertexID: v.ID, Op: "build", Message: ErrNoComponentInstance.Error(), Err: ErrNoComponentInstance}
		v.fail(&rec, verr, "")
		return rec, res, verr
	}

	v.state = StateBuilding
	start := time.Now()

	inputs, err := v.resolveInputs()
	if err != nil {
		rec.Duration = time.Since(start)
		v.fail(&rec, err, "")
		return rec, res, err
	}

	res, err = v.invoke(ctx, inputs)
	rec.Duration = time.Since(start)

	if err != nil {
		stack := ""
		if pe, ok := err.(*PanicError); ok {
			stack = pe.Stack
		}
		v.fail(&rec, err, stack)
		return rec, res, err
	}

	rec.Outputs = res.Outputs
	rec.Artifacts = res.Artifacts
	rec.Logs = res.Logs
	rec.ActiveOutputs = res.ActiveOutputs
	rec.Valid = true
	v.state = StateSuccess
	v.result = &rec
	return rec, res, nil
}

// invoke calls the component build with panic recovery.
func (v *Vertex) invoke(ctx context.Context, inputs map[string]any) (res component.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				VertexID: v.ID,
				Value:    r,
				Stack:    string(debug.Stack()),
			}
		}
	}()

	res, err = v.component.Build(ctx, inputs)
	if err != nil {
		return res, &VertexError{
			VertexID: v.ID,
			Op:       "build",
			Message:  err.Error(),
			Err:      err,
		}
	}
	return res, nil
}

// fail transitions the vertex to the invalid build state, caching the
// captured error on the result record.
func (v *Vertex) fail(rec *ResultData, err error, stack string) {
	rec.Valid = false
	rec.Error = &BuildError{Message: err.Error(), Stack: stack}
	v.state = StateFailed
	v.result = rec
}
