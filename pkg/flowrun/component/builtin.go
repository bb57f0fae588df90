package component

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultRegistry returns a registry with the built-in component set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("text.constant", NewTextConstant)
	r.Register("text.concat", NewTextConcat)
	r.Register("text.upper", NewTextUpper)
	r.Register("chat.echo", NewChatEcho)
	r.Register("flow.loop", NewLoop)
	r.Register("flow.router", NewRouter)
	r.Register("flow.notify", NewNotify)
	r.Register("flow.listen", NewListen)
	return r
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intParam(params map[string]any, key string, defaultVal int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

func toText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// TextConstant emits a fixed string configured via the "value" param.
type TextConstant struct {
	value string
}

// NewTextConstant constructs a text.constant component.
func NewTextConstant(params map[string]any) (Component, error) {
	return &TextConstant{value: stringParam(params, "value")}, nil
}

func (c *TextConstant) Meta() Meta {
	return Meta{
		Type:    "text.constant",
		Outputs: []Output{{Name: "output", Type: TypeText}},
	}
}

func (c *TextConstant) Build(_ context.Context, _ map[string]any) (Result, error) {
	return Result{Outputs: map[string]any{"output": c.value}}, nil
}

// TextConcat joins its two inputs with an optional separator param.
type TextConcat struct {
	separator string
}

// NewTextConcat constructs a text.concat component.
func NewTextConcat(params map[string]any) (Component, error) {
	return &TextConcat{separator: stringParam(params, "separator")}, nil
}

func (c *TextConcat) Meta() Meta {
	return Meta{
		Type: "text.concat",
		Inputs: []Input{
			{Name: "left", Type: TypeText, Required: true},
			{Name: "right", Type: TypeText, Required: true},
		},
		Outputs: []Output{{Name: "output", Type: TypeText}},
	}
}

func (c *TextConcat) Build(_ context.Context, inputs map[string]any) (Result, error) {
	out := toText(inputs["left"]) + c.separator + toText(inputs["right"])
	return Result{Outputs: map[string]any{"output": out}}, nil
}

// TextUpper upper-cases its input.
type TextUpper struct{}

// NewTextUpper constructs a text.upper component.
func NewTextUpper(_ map[string]any) (Component, error) {
	return &TextUpper{}, nil
}

func (c *TextUpper) Meta() Meta {
	return Meta{
		Type:    "text.upper",
		Inputs:  []Input{{Name: "input", Type: TypeText, Required: true}},
		Outputs: []Output{{Name: "output", Type: TypeText}},
	}
}

func (c *TextUpper) Build(_ context.Context, inputs map[string]any) (Result, error) {
	return Result{Outputs: map[string]any{"output": strings.ToUpper(toText(inputs["input"]))}}, nil
}

// ChatEcho is a stand-in chat component: it echoes its message input and
// records the model identity it was configured with as an artifact.
type ChatEcho struct {
	model string
}

// NewChatEcho constructs a chat.echo component.
func NewChatEcho(params map[string]any) (Component, error) {
	return &ChatEcho{model: stringParam(params, "model")}, nil
}

func (c *ChatEcho) Meta() Meta {
	return Meta{
		Type:    "chat.echo",
		Inputs:  []Input{{Name: "message", Type: TypeText, Required: true}},
		Outputs: []Output{{Name: "output", Type: TypeMessage}},
	}
}

func (c *ChatEcho) Build(_ context.Context, inputs map[string]any) (Result, error) {
	msg := toText(inputs["message"])
	return Result{
		Outputs:   map[string]any{"output": msg},
		Artifacts: map[string]any{"model": c.model},
		Logs:      []string{fmt.Sprintf("echoed %d bytes", len(msg))},
	}, nil
}

// Loop is a bounded iteration state machine. Each pass it emits its input
// with the current iteration count appended to artifacts and requests a
// rerun until "iterations" passes have completed. The runner enforces the
// hard iteration ceiling independently.
type Loop struct {
	iterations int

	mu   sync.Mutex
	pass int
}

// NewLoop constructs a flow.loop component. The "iterations" param sets how
// many passes it requests (default 1).
func NewLoop(params map[string]any) (Component, error) {
	n := intParam(params, "iterations", 1)
	if n < 1 {
		n = 1
	}
	return &Loop{iterations: n}, nil
}

func (c *Loop) Meta() Meta {
	return Meta{
		Type:    "flow.loop",
		Inputs:  []Input{{Name: "input", Type: TypeAny, Required: false}},
		Outputs: []Output{{Name: "output", Type: TypeAny}},
	}
}

// Reset implements Resettable: the pass counter clears so the loop starts
// over on the graph's next run.
func (c *Loop) Reset() {
	c.mu.Lock()
	c.pass = 0
	c.mu.Unlock()
}

func (c *Loop) Build(_ context.Context, inputs map[string]any) (Result, error) {
	c.mu.Lock()
	c.pass++
	pass := c.pass
	c.mu.Unlock()

	return Result{
		Outputs:   map[string]any{"output": inputs["input"]},
		Artifacts: map[string]any{"iteration": pass},
		Rerun:     pass < c.iterations,
	}, nil
}

// Router selects one of two output branches based on its "route" input.
// When route equals the "match" param the "true" output is active,
// otherwise "false". Dependents on the inactive branch are not built.
type Router struct {
	match string
}

// NewRouter constructs a flow.router component.
func NewRouter(params map[string]any) (Component, error) {
	return &Router{match: stringParam(params, "match")}, nil
}

func (c *Router) Meta() Meta {
	return Meta{
		Type:   "flow.router",
		Inputs: []Input{{Name: "route", Type: TypeText, Required: true}},
		Outputs: []Output{
			{Name: "true", Type: TypeAny},
			{Name: "false", Type: TypeAny},
		},
	}
}

func (c *Router) Build(_ context.Context, inputs map[string]any) (Result, error) {
	route := toText(inputs["route"])
	active := "false"
	if route == c.match {
		active = "true"
	}
	return Result{
		Outputs:       map[string]any{active: route},
		ActiveOutputs: []string{active},
	}, nil
}

// Notify writes its input into a named state slot and flags listeners on
// that slot for re-execution.
type Notify struct {
	slot  string
	state StateStore
}

// NewNotify constructs a flow.notify component. The "name" param is the
// state slot to write.
func NewNotify(params map[string]any) (Component, error) {
	return &Notify{slot: stringParam(params, "name")}, nil
}

// BindState implements StateAware.
func (c *Notify) BindState(store StateStore) { c.state = store }

func (c *Notify) Meta() Meta {
	return Meta{
		Type:    "flow.notify",
		Inputs:  []Input{{Name: "input", Type: TypeAny, Required: true}},
		Outputs: []Output{{Name: "output", Type: TypeAny}},
	}
}

func (c *Notify) Build(_ context.Context, inputs map[string]any) (Result, error) {
	if c.state != nil {
		c.state.SetState(c.slot, inputs["input"])
	}
	return Result{
		Outputs: map[string]any{"output": inputs["input"]},
		Notify:  c.slot,
	}, nil
}

// Listen reads a named state slot. Listen vertices are state vertices:
// a Notify on the same slot flags them for re-execution.
type Listen struct {
	slot  string
	state StateStore
}

// NewListen constructs a flow.listen component. The "name" param is the
// state slot to read.
func NewListen(params map[string]any) (Component, error) {
	return &Listen{slot: stringParam(params, "name")}, nil
}

// BindState implements StateAware.
func (c *Listen) BindState(store StateStore) { c.state = store }

func (c *Listen) Meta() Meta {
	return Meta{
		Type:    "flow.listen",
		Outputs: []Output{{Name: "output", Type: TypeAny}},
	}
}

func (c *Listen) Build(_ context.Context, _ map[string]any) (Result, error) {
	var value any
	if c.state != nil {
		value, _ = c.state.GetState(c.slot)
	}
	return Result{Outputs: map[string]any{"output": value}}, nil
}
