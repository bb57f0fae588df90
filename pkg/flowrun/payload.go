package flowrun

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FlowPayload is the serialized form of a flow as produced by flow storage.
// It mirrors the stored JSON shape: a node/edge graph under "data" plus
// optional flow metadata.
type FlowPayload struct {
	Data         GraphData `json:"data"`
	IsComponent  bool      `json:"is_component,omitempty"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	EndpointName string    `json:"endpoint_name,omitempty"`
}

// GraphData holds the node/edge collections of a serialized flow.
type GraphData struct {
	Nodes    []NodePayload `json:"nodes"`
	Edges    []EdgePayload `json:"edges"`
	Viewport *Viewport     `json:"viewport,omitempty"`
}

// NodePayload is one serialized node.
type NodePayload struct {
	ID   string   `json:"id"`
	Data NodeData `json:"data"`
}

// NodeData carries the component binding and configuration for a node.
type NodeData struct {
	// Type names the component class backing this node.
	Type string `json:"type"`

	// Params are literal input values configured on the node.
	// Inputs fed by edges are resolved at build time instead.
	Params map[string]any `json:"params,omitempty"`

	// IsState marks the node as externally re-activatable (Notify/Listen).
	IsState bool `json:"is_state,omitempty"`

	// StateName is the named context slot a state node listens on.
	StateName string `json:"state_name,omitempty"`
}

// EdgePayload is one serialized edge. SourceOutput and TargetInput default
// to "output" and "input" when omitted.
type EdgePayload struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceOutput string `json:"source_output,omitempty"`
	TargetInput  string `json:"target_input,omitempty"`
	DataType     string `json:"data_type,omitempty"`
}

// Viewport is UI positioning metadata. It is carried through deserialization
// but has no effect on execution.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// ParsePayload deserializes a stored flow payload.
func ParsePayload(data []byte) (*FlowPayload, error) {
	var p FlowPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &StructuralError{Err: fmt.Errorf("parse flow payload: %w", err)}
	}
	return &p, nil
}

// ContentHash returns a stable hex digest of the payload.
//
// The payload is round-tripped through an untyped JSON value before hashing,
// so two payloads that differ only in key order or whitespace produce the
// same digest (encoding/json emits map keys in sorted order).
func (p *FlowPayload) ContentHash() (string, error) {
	canonical, err := canonicalJSON(p)
	if err != nil {
		return "", fmt.Errorf("hash flow payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON produces a deterministic encoding of v by marshaling,
// decoding into untyped maps, and re-marshaling.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var untyped any
	if err := json.Unmarshal(raw, &untyped); err != nil {
		return nil, err
	}
	return json.Marshal(untyped)
}
