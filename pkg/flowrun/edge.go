package flowrun

import "github.com/flowrun/flowrun/pkg/flowrun/component"

// Default socket names used when a serialized edge omits them.
const (
	defaultOutputName = "output"
	defaultInputName  = "input"
)

// Edge is a typed connection from one vertex's output socket to another
// vertex's input socket. Edges are immutable after graph construction.
type Edge struct {
	// Source and Target are vertex ids.
	Source string
	Target string

	// SourceOutput and TargetInput name the connected sockets.
	SourceOutput string
	TargetInput  string

	// DataType is the compatibility tag carried by the serialized edge.
	// Empty means the universal type.
	DataType string
}

func newEdge(p EdgePayload) *Edge {
	e := &Edge{
		Source:       p.Source,
		Target:       p.Target,
		SourceOutput: p.SourceOutput,
		TargetInput:  p.TargetInput,
		DataType:     p.DataType,
	}
	if e.SourceOutput == "" {
		e.SourceOutput = defaultOutputName
	}
	if e.TargetInput == "" {
		e.TargetInput = defaultInputName
	}
	return e
}

// compatible checks the edge's declared type against the source output and
// target input socket types.
func (e *Edge) compatible(out component.Output, in component.Input) bool {
	return component.Compatible(out.Type, e.DataType) &&
		component.Compatible(e.DataType, in.Type) &&
		component.Compatible(out.Type, in.Type)
}
