package flowrun

import "time"

// BuildError is the captured form of a component failure: a short message
// plus a formatted stack trace when one is available.
type BuildError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ResultData is the structured record one vertex build produces.
type ResultData struct {
	// VertexID identifies the built vertex.
	VertexID string `json:"vertex_id"`

	// ComponentType is the component class backing the vertex.
	ComponentType string `json:"component_type"`

	// BuildID uniquely identifies this build.
	BuildID string `json:"build_id"`

	// Outputs maps output socket names to produced values.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Artifacts are structured byproducts distinct from the outputs.
	Artifacts map[string]any `json:"artifacts,omitempty"`

	// Logs are the component's build log lines.
	Logs []string `json:"logs,omitempty"`

	// ActiveOutputs restricts which output sockets carried data, for
	// router builds. Nil means all outputs were active.
	ActiveOutputs []string `json:"active_outputs,omitempty"`

	// Duration is the wall-clock build time.
	Duration time.Duration `json:"duration"`

	// Valid is false when the build failed or was skipped.
	Valid bool `json:"valid"`

	// Skipped is true when the vertex was not built because an upstream
	// dependency failed.
	Skipped bool `json:"skipped,omitempty"`

	// Error carries the captured failure for invalid builds.
	Error *BuildError `json:"error,omitempty"`
}

// RunResult aggregates per-vertex results for one run.
type RunResult struct {
	RunID     string        `json:"run_id"`
	FlowID    string        `json:"flow_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Results   []ResultData  `json:"results"`
	Failed    []string      `json:"failed,omitempty"`
	Skipped   []string      `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// OK reports whether every scheduled vertex built successfully.
func (r *RunResult) OK() bool {
	return len(r.Failed) == 0 && len(r.Skipped) == 0
}

// Result returns the result record for a vertex id, or nil when the vertex
// produced none.
func (r *RunResult) Result(vertexID string) *ResultData {
	// Later entries win: a loop revisit appends a fresh record.
	for i := len(r.Results) - 1; i >= 0; i-- {
		if r.Results[i].VertexID == vertexID {
			return &r.Results[i]
		}
	}
	return nil
}
