package flowrun

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/flowrun/flowrun/pkg/flowrun/component"
)

// Graph owns the full vertex/edge collection for one flow and computes the
// dependency order its vertices build in.
//
// A Graph may be run any number of times: Run resets build state on entry,
// which is what makes a session-cached graph reusable. It is not safe for
// concurrent runs, since the runner mutates vertex state in place.
type Graph struct {
	// FlowID is the owning flow, empty for ad-hoc subgraphs.
	FlowID string

	// UserID is the opaque auth context supplied by the caller.
	UserID string

	vertices map[string]*Vertex
	vertexID []string // insertion order, for deterministic iteration
	edges    []*Edge

	stateMu   sync.Mutex
	slots     map[string]any
	activated map[string]bool
}

// FromPayload deserializes a stored flow into a live graph, instantiating
// one vertex per node through the component registry.
//
// Validation failures are joined into a single StructuralError naming every
// offending node and edge: duplicate vertex ids, unknown component types,
// dangling edge endpoints, incompatible socket types, required inputs with
// neither a literal param nor an edge, and true cycles.
func FromPayload(p *FlowPayload, flowID, userID string, reg *component.Registry) (*Graph, error) {
	if p == nil {
		return nil, &StructuralError{Err: errors.New("nil payload")}
	}
	if reg == nil {
		return nil, &StructuralError{Err: errors.New("nil component registry")}
	}

	g := &Graph{
		FlowID:    flowID,
		UserID:    userID,
		vertices:  make(map[string]*Vertex, len(p.Data.Nodes)),
		slots:     make(map[string]any),
		activated: make(map[string]bool),
	}

	var errs []error

	for _, node := range p.Data.Nodes {
		if node.ID == "" {
			errs = append(errs, errors.New("node with empty id"))
			continue
		}
		if _, exists := g.vertices[node.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateVertex, node.ID))
			continue
		}

		comp, err := reg.New(node.Data.Type, node.Data.Params)
		if err != nil {
			if errors.Is(err, component.ErrUnknownType) {
				errs = append(errs, fmt.Errorf("%w: node %s has type %q", ErrUnknownComponentType, node.ID, node.Data.Type))
			} else {
				errs = append(errs, fmt.Errorf("node %s: instantiate component: %w", node.ID, err))
			}
			continue
		}
		if sa, ok := comp.(component.StateAware); ok {
			sa.BindState(g)
		}

		g.vertices[node.ID] = &Vertex{
			ID:        node.ID,
			Type:      node.Data.Type,
			Params:    node.Data.Params,
			IsState:   node.Data.IsState,
			StateName: node.Data.StateName,
			graph:     g,
			component: comp,
			state:     StatePending,
		}
		g.vertexID = append(g.vertexID, node.ID)
	}

	for _, ep := range p.Data.Edges {
		e := newEdge(ep)

		src, srcOK := g.vertices[e.Source]
		dst, dstOK := g.vertices[e.Target]
		if !srcOK {
			errs = append(errs, fmt.Errorf("%w: edge source %q", ErrDanglingEdge, e.Source))
		}
		if !dstOK {
			errs = append(errs, fmt.Errorf("%w: edge target %q", ErrDanglingEdge, e.Target))
		}
		if !srcOK || !dstOK {
			continue
		}

		out, outOK := src.component.Meta().Output(e.SourceOutput)
		in, inOK := dst.component.Meta().Input(e.TargetInput)
		if !outOK {
			errs = append(errs, fmt.Errorf("edge %s->%s: source has no output %q", e.Source, e.Target, e.SourceOutput))
			continue
		}
		// Unknown target inputs are allowed: components may accept
		// free-form inputs beyond their declared sockets.
		if inOK && !e.compatible(out, in) {
			errs = append(errs, fmt.Errorf("%w: %s.%s (%s) -> %s.%s (%s)",
				ErrTypeMismatch, e.Source, e.SourceOutput, out.Type, e.Target, e.TargetInput, in.Type))
			continue
		}

		g.edges = append(g.edges, e)
		src.outgoing = append(src.outgoing, e)
		dst.incoming = append(dst.incoming, e)
	}

	for _, id := range g.vertexID {
		v := g.vertices[id]
		for _, in := range v.component.Meta().Inputs {
			if !in.Required {
				continue
			}
			if _, ok := v.Params[in.Name]; ok {
				continue
			}
			if v.edgeInto(in.Name) == nil {
				errs = append(errs, fmt.Errorf("%w: vertex %s input %q", ErrMissingInput, id, in.Name))
			}
		}
	}

	if len(errs) == 0 {
		if _, err := g.topoOrder(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, &StructuralError{Err: errors.Join(errs...)}
	}
	return g, nil
}

// Reset returns every vertex to pending, clearing cached results, pending
// state activations, and component-internal run state (loop pass counters).
// Named state slots survive: they belong to the session, not to one run.
// Run calls Reset on entry, so a cached graph needs no manual reset.
func (g *Graph) Reset() {
	for _, id := range g.vertexID {
		v := g.vertices[id]
		v.state = StatePending
		v.result = nil
		if rc, ok := v.component.(component.Resettable); ok {
			rc.Reset()
		}
	}
	g.stateMu.Lock()
	g.activated = make(map[string]bool)
	g.stateMu.Unlock()
}

// Vertex returns the vertex with the given id.
func (g *Graph) Vertex(id string) (*Vertex, error) {
	v, ok := g.vertices[id]
	if !ok {
		return nil, &NotFoundError{Kind: "vertex", ID: id}
	}
	return v, nil
}

// Vertices returns all vertices in payload order.
func (g *Graph) Vertices() []*Vertex {
	out := make([]*Vertex, 0, len(g.vertexID))
	for _, id := range g.vertexID {
		out = append(out, g.vertices[id])
	}
	return out
}

// Edges returns all validated edges.
func (g *Graph) Edges() []*Edge { return g.edges }

// BuildOrder returns a valid topological order over the graph's vertices:
// for every edge u->v, u precedes v. Ties are broken by vertex id so the
// order is deterministic for a given payload.
func (g *Graph) BuildOrder() []string {
	order, err := g.topoOrder()
	if err != nil {
		// FromPayload rejects cyclic payloads, so a live graph always
		// has a valid order.
		panic(err)
	}
	return order
}

// topoOrder runs Kahn's algorithm with a sorted ready set.
func (g *Graph) topoOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.vertices))
	for _, id := range g.vertexID {
		indegree[id] = 0
	}
	for _, e := range g.edges {
		indegree[e.Target]++
	}

	var ready []string
	for _, id := range g.vertexID {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.vertices))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []string
		for _, e := range g.vertices[id].outgoing {
			indegree[e.Target]--
			if indegree[e.Target] == 0 {
				unlocked = append(unlocked, e.Target)
			}
		}
		sort.Strings(unlocked)
		ready = mergeSorted(ready, unlocked)
	}

	if len(order) != len(g.vertices) {
		var stuck []string
		for id, d := range indegree {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return order, nil
}

func mergeSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Dependents returns the transitive downstream closure of a vertex id,
// excluding the vertex itself.
func (g *Graph) Dependents(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		v, ok := g.vertices[cur]
		if !ok {
			return
		}
		for _, e := range v.outgoing {
			if !seen[e.Target] {
				seen[e.Target] = true
				walk(e.Target)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// SetState writes a named context slot. Implements component.StateStore.
func (g *Graph) SetState(name string, value any) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	g.slots[name] = value
}

// GetState reads a named context slot. Implements component.StateStore.
func (g *Graph) GetState(name string) (any, bool) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	v, ok := g.slots[name]
	return v, ok
}

// ActivateStateVertices flags every state vertex listening on the named
// slot as eligible for re-execution, attributing the trigger to callerID.
// The caller itself is never flagged, which prevents self-trigger loops.
// Returns the flagged vertex ids in sorted order.
func (g *Graph) ActivateStateVertices(name, callerID string) []string {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	var flagged []string
	for _, id := range g.vertexID {
		v := g.vertices[id]
		if !v.IsState || v.StateName != name || v.ID == callerID {
			continue
		}
		g.activated[v.ID] = true
		flagged = append(flagged, v.ID)
	}
	sort.Strings(flagged)
	return flagged
}

// takeActivated drains and returns the set of flagged state vertices.
func (g *Graph) takeActivated() []string {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	if len(g.activated) == 0 {
		return nil
	}
	out := make([]string, 0, len(g.activated))
	for id := range g.activated {
		out = append(out, id)
	}
	g.activated = make(map[string]bool)
	sort.Strings(out)
	return out
}

// edgeInto returns the incoming edge feeding the named input, if any.
func (v *Vertex) edgeInto(input string) *Edge {
	for _, e := range v.incoming {
		if e.TargetInput == input {
			return e
		}
	}
	return nil
}
