package flowrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/pkg/flowrun/component"
)

// failComponent always fails its build.
type failComponent struct{}

func (failComponent) Meta() component.Meta {
	return component.Meta{
		Type:    "test.fail",
		Inputs:  []component.Input{{Name: "input", Type: component.TypeAny}},
		Outputs: []component.Output{{Name: "output", Type: component.TypeAny}},
	}
}

func (failComponent) Build(context.Context, map[string]any) (component.Result, error) {
	return component.Result{}, errors.New("intentional failure")
}

// panicComponent panics mid-build.
type panicComponent struct{}

func (panicComponent) Meta() component.Meta {
	return component.Meta{
		Type:    "test.panic",
		Outputs: []component.Output{{Name: "output", Type: component.TypeAny}},
	}
}

func (panicComponent) Build(context.Context, map[string]any) (component.Result, error) {
	panic("component exploded")
}

// sleepComponent blocks for the configured duration, honoring ctx.
type sleepComponent struct {
	d time.Duration
}

func (c sleepComponent) Meta() component.Meta {
	return component.Meta{
		Type:    "test.sleep",
		Outputs: []component.Output{{Name: "output", Type: component.TypeAny}},
	}
}

func (c sleepComponent) Build(ctx context.Context, _ map[string]any) (component.Result, error) {
	select {
	case <-time.After(c.d):
		return component.Result{Outputs: map[string]any{"output": "slept"}}, nil
	case <-ctx.Done():
		return component.Result{}, ctx.Err()
	}
}

// badRouterComponent activates an output socket it does not declare.
type badRouterComponent struct{}

func (badRouterComponent) Meta() component.Meta {
	return component.Meta{
		Type:    "test.badrouter",
		Outputs: []component.Output{{Name: "output", Type: component.TypeAny}},
	}
}

func (badRouterComponent) Build(context.Context, map[string]any) (component.Result, error) {
	return component.Result{
		Outputs:       map[string]any{"ghost": 1},
		ActiveOutputs: []string{"ghost"},
	}, nil
}

// testRegistry is the built-in set plus failure-injection components.
func testRegistry() *component.Registry {
	r := component.DefaultRegistry()
	r.Register("test.fail", func(map[string]any) (component.Component, error) {
		return failComponent{}, nil
	})
	r.Register("test.panic", func(map[string]any) (component.Component, error) {
		return panicComponent{}, nil
	})
	r.Register("test.sleep", func(params map[string]any) (component.Component, error) {
		ms := 50
		if v, ok := params["ms"].(int); ok {
			ms = v
		} else if v, ok := params["ms"].(float64); ok {
			ms = int(v)
		}
		return sleepComponent{d: time.Duration(ms) * time.Millisecond}, nil
	})
	r.Register("test.badrouter", func(map[string]any) (component.Component, error) {
		return badRouterComponent{}, nil
	})
	return r
}

// mustGraph builds a graph from a payload, failing the test on error.
func mustGraph(t *testing.T, p *FlowPayload) *Graph {
	t.Helper()
	g, err := FromPayload(p, "flow-test", "user-test", testRegistry())
	require.NoError(t, err)
	return g
}

func node(id, typ string, params map[string]any) NodePayload {
	return NodePayload{ID: id, Data: NodeData{Type: typ, Params: params}}
}

func stateNode(id, typ, slot string) NodePayload {
	return NodePayload{ID: id, Data: NodeData{
		Type:      typ,
		Params:    map[string]any{"name": slot},
		IsState:   true,
		StateName: slot,
	}}
}

func edge(source, target, output, input string) EdgePayload {
	return EdgePayload{Source: source, Target: target, SourceOutput: output, TargetInput: input}
}
