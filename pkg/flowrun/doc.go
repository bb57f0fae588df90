/*
Package flowrun executes stored flow graphs: directed graphs of typed
component vertices deserialized from a JSON payload.

# Overview

flowrun is a Go library for running visual-editor flows. A flow payload
describes nodes (component instances with literal parameters) and edges
(typed connections between output and input sockets). FromPayload validates
the payload exhaustively and produces a live Graph; Run builds every vertex
in dependency order, feeding upstream outputs into downstream inputs.

The engine provides:
  - Exhaustive structural validation with every fault reported at once
  - Deterministic topological scheduling
  - Configurable failure policy (skip dependents or abort the run)
  - Loop and router components via scheduler feedback
  - Session caching keyed by payload content hash
  - Retention-bounded build logging
  - OpenTelemetry integration for observability

# Basic Usage

Deserialize a payload, then run the graph:

	payload, err := flowrun.ParsePayload(raw)
	if err != nil {
	    log.Fatal(err)
	}

	graph, err := flowrun.FromPayload(payload, "flow-1", "user-1", component.DefaultRegistry())
	if err != nil {
	    log.Fatal(err)
	}

	ctx := flowrun.NewContext(context.Background(),
	    flowrun.WithSessionID("session-1"))
	result, err := graph.Run(ctx)
	if err != nil {
	    log.Fatal(err)
	}
	for _, rec := range result.Results {
	    fmt.Println(rec.VertexID, rec.Valid)
	}

# Failure Policy

By default a failed vertex skips its transitive dependents and the run
continues with independent vertices; the run itself returns a nil error
with failures recorded in the result:

	result, _ := graph.Run(ctx) // PolicyContinue

	result, err := graph.Run(ctx, flowrun.WithFailurePolicy(flowrun.PolicyAbort))
	// err wraps ErrRunAborted and names the failing vertex

# Events

Stream build lifecycle events to a sink. Each operation publishes exactly
one "before" event, then exactly one of "after" or "error":

	sink := event.NewChannelSink(64)
	go func() {
	    for evt := range sink.Events() {
	        fmt.Println(evt.Kind, evt.VertexID)
	    }
	}()

	result, err := graph.Run(ctx, flowrun.WithEventSink(sink))

event.Stream adapts a sink channel to Server-Sent Events for HTTP clients,
with exactly-once disconnect cleanup.

# Session Caching

Cache constructed graphs across requests. Keys combine the session id with
the payload's content hash, so flow edits never hit a stale graph:

	svc := session.NewService(session.NewMemoryStore())
	key := session.BuildKey(sessionID, payload.ContentHash())

	entry, err := svc.LoadSession(ctx, key, func(ctx context.Context) (*session.Entry, error) {
	    g, err := flowrun.FromPayload(payload, flowID, userID, reg)
	    if err != nil {
	        return nil, err
	    }
	    return &session.Entry{Graph: g, Payload: payload, FlowID: flowID}, nil
	})

Concurrent loads for the same key coalesce onto a single construction. A
cached graph is immediately runnable: Run resets build state on entry, so
a hit can be executed again without rebuilding from the payload.

# Build Log

Persist per-vertex build records with retention caps enforced in the same
transaction as the insert:

	store, err := buildlog.NewSQLiteStore("./builds.db", buildlog.Caps{
	    MaxBuildsPerVertex: 10,
	    MaxBuildsToKeep:    1000,
	})
	defer store.Close()

	result, err := graph.Run(ctx, flowrun.WithBuildLog(store))

# Error Handling

Errors carry the failing vertex and classify into categories:

	var verr *flowrun.VertexError
	if errors.As(err, &verr) {
	    log.Printf("vertex %s failed: %s", verr.VertexID, verr.Message)
	}

	switch flowrun.CategoryOf(err) {
	case flowrun.CategoryValidation: // 4xx-ish: bad payload or inputs
	case flowrun.CategoryNotFound:
	case flowrun.CategoryInfrastructure:
	case flowrun.CategoryComponent:
	}

Panics in component builds are recovered and converted to PanicError with
the stack trace attached to the build record.

# Thread Safety

  - FlowPayload is immutable after parsing
  - Graph runs repeatedly but is NOT safe for concurrent runs: the runner
    mutates vertex state in place
  - session.Service and all Store implementations are safe for concurrent use
  - event sinks are safe for concurrent publication

# Subpackages

  - component: component interface, registry, and built-in components
  - session: session/graph caching (memory, Redis)
  - buildlog: retention-bounded build persistence (memory, SQLite)
  - event: lifecycle events, sinks, and SSE streaming
  - observability: logging, metrics, and tracing helpers
  - config: engine settings and file loading
*/
package flowrun
