package flowrun

import (
	"errors"
	"fmt"
)

// Category classifies errors so callers can branch without matching on
// message strings.
type Category int

// Error categories.
const (
	CategoryUnknown Category = iota
	// CategoryNotFound covers lookups for absent vertices or cache entries.
	CategoryNotFound
	// CategoryValidation covers structural payload errors: dangling edges,
	// unknown component types, missing required inputs.
	CategoryValidation
	// CategoryInfrastructure covers cache and storage failures, which
	// propagate unmodified.
	CategoryInfrastructure
	// CategoryComponent covers failures raised by a component's own build.
	CategoryComponent
)

// categorized is implemented by errors that carry a Category.
type categorized interface {
	Category() Category
}

// CategoryOf returns the category of err, or CategoryUnknown if none of the
// errors in its chain carry one.
func CategoryOf(err error) Category {
	var c categorized
	if errors.As(err, &c) {
		return c.Category()
	}
	return CategoryUnknown
}

// Sentinel errors for graph construction.
var (
	// ErrDanglingEdge indicates an edge endpoint references a missing vertex.
	ErrDanglingEdge = errors.New("edge references missing vertex")

	// ErrUnknownComponentType indicates a node references an unregistered component type.
	ErrUnknownComponentType = errors.New("unknown component type")

	// ErrDuplicateVertex indicates two nodes share an id.
	ErrDuplicateVertex = errors.New("duplicate vertex id")

	// ErrTypeMismatch indicates an edge connects incompatible socket types.
	ErrTypeMismatch = errors.New("incompatible edge types")

	// ErrMissingInput indicates a required input has neither a literal param nor an edge.
	ErrMissingInput = errors.New("required input not connected")

	// ErrCycle indicates the payload contains a true cycle.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrNoComponentInstance indicates a vertex was asked to build without a component.
	ErrNoComponentInstance = errors.New("vertex has no component instance")
)

// Sentinel errors for execution.
var (
	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrVertexTimeout indicates a vertex build exceeded its soft time limit.
	ErrVertexTimeout = errors.New("vertex build timed out")

	// ErrRunAborted indicates the run stopped under the abort failure policy.
	ErrRunAborted = errors.New("run aborted on vertex failure")
)

// StructuralError aggregates payload validation failures. It is always fatal
// to the run; Err joins one error per offending node or edge.
type StructuralError struct {
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("invalid flow payload: %v", e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Category implements categorized.
func (e *StructuralError) Category() Category { return CategoryValidation }

// NotFoundError indicates a lookup for an absent entity.
type NotFoundError struct {
	// Kind names what was looked up ("vertex", "session").
	Kind string
	// ID is the missing identifier.
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Category implements categorized.
func (e *NotFoundError) Category() Category { return CategoryNotFound }

// VertexError captures a component build failure at the vertex boundary.
// The raw exception never propagates past the vertex: the runner decides
// whether dependents are skipped or the run aborts.
type VertexError struct {
	// VertexID is the vertex whose build failed.
	VertexID string
	// Op is the operation that failed ("resolve", "build").
	Op string
	// Message is the short user-facing failure description.
	Message string
	// Stack is the formatted stack trace, when the failure was a panic.
	Stack string
	// Err is the underlying error.
	Err error
}

func (e *VertexError) Error() string {
	return fmt.Sprintf("vertex %s: %s: %s", e.VertexID, e.Op, e.Message)
}

func (e *VertexError) Unwrap() error { return e.Err }

// Category implements categorized.
func (e *VertexError) Category() Category { return CategoryComponent }

// PanicError captures panic information from a component build.
type PanicError struct {
	// VertexID is the vertex whose component panicked.
	VertexID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("vertex %s panicked: %v", e.VertexID, e.Value)
}

// Category implements categorized.
func (e *PanicError) Category() Category { return CategoryComponent }

// CancellationError records where a run was cancelled.
type CancellationError struct {
	// VertexID is the vertex that was about to build or was building.
	VertexID string
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if cancellation landed mid-build.
	WasExecuting bool
}

func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during vertex %s: %v", e.VertexID, e.Cause)
	}
	return fmt.Sprintf("cancelled before vertex %s: %v", e.VertexID, e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

// LoopLimitError indicates a loop vertex exceeded its iteration bound.
type LoopLimitError struct {
	// VertexID is the loop vertex.
	VertexID string
	// Max is the configured iteration limit.
	Max int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("vertex %s exceeded maximum loop iterations (%d)", e.VertexID, e.Max)
}

// Category implements categorized.
func (e *LoopLimitError) Category() Category { return CategoryComponent }

// RouterError indicates a router component selected an output socket that
// does not exist on the vertex.
type RouterError struct {
	// VertexID is the routing vertex.
	VertexID string
	// Output is the unknown output name the router returned.
	Output string
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router %s selected unknown output %q", e.VertexID, e.Output)
}

// Category implements categorized.
func (e *RouterError) Category() Category { return CategoryComponent }
