package flowrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowrun/flowrun/pkg/flowrun/buildlog"
	"github.com/flowrun/flowrun/pkg/flowrun/component"
	"github.com/flowrun/flowrun/pkg/flowrun/event"
	"github.com/flowrun/flowrun/pkg/flowrun/observability"
)

// Run builds every vertex of the graph in dependency order and aggregates
// the per-vertex records into a run-level result.
//
// Execution is strictly sequential within a run: a vertex never starts
// building before all its upstream dependencies have completed (success or
// recorded failure). Component builds that perform I/O yield through ctx.
//
// On vertex failure the configured FailurePolicy decides the outcome:
// PolicyContinue skips the failed vertex's dependents and keeps going,
// returning a nil error with failures recorded in the result;
// PolicyAbort stops scheduling and returns an error naming the vertex.
//
// The returned RunResult is non-nil whenever execution started, including
// on abort and cancellation, so partial results can still be streamed.
func (g *Graph) Run(ctx Context, opts ...RunOption) (result *RunResult, runErr error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	// A graph coming out of the session cache has already run; clear the
	// previous run's build state before scheduling.
	g.Reset()

	ec, ok := ctx.(*executionContext)
	if !ok {
		ec = NewContext(ctx, WithLogger(ctx.Logger()), WithRunID(ctx.RunID()),
			WithSessionID(ctx.SessionID()), WithFlowID(ctx.FlowID())).(*executionContext)
	}

	runID := ctx.RunID()
	logger := ctx.Logger()
	dispatcher := event.NewDispatcher(cfg.sink, logger)
	start := time.Now()

	observability.LogRunStart(logger, runID, g.FlowID)

	var execCtx context.Context = ctx
	var runSpan trace.Span
	if cfg.tracingEnabled {
		execCtx, runSpan = cfg.spans.StartRunSpan(ctx, g.FlowID, runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	dispatcher.Publish(execCtx, event.New(event.KindBefore, "run",
		map[string]any{"flow_id": g.FlowID, "vertices": len(g.vertices)},
		event.WithRunID(runID)))

	result = &RunResult{
		RunID:     runID,
		FlowID:    g.FlowID,
		SessionID: ctx.SessionID(),
	}

	r := &runState{
		graph:      g,
		cfg:        &cfg,
		dispatcher: dispatcher,
		ec:         ec,
		execCtx:    execCtx,
		result:     result,
		builds:     make(map[string]int),
		active:     make(map[string][]string),
	}

	runErr = r.drain(g.BuildOrder())

	duration := time.Since(start)
	result.Duration = duration
	cfg.metrics.RecordGraphRun(ctx, runErr == nil, duration)

	if runErr != nil {
		dispatcher.Publish(execCtx, event.New(event.KindError, "run", event.ErrorPayload{
			Message: runErr.Error(),
			Cause:   runErr.Error(),
		}, event.WithRunID(runID)))
		observability.LogRunError(logger, runID, runErr, float64(duration.Milliseconds()), r.lastVertex)
		return result, runErr
	}

	dispatcher.Publish(execCtx, event.New(event.KindAfter, "run", result,
		event.WithRunID(runID)))
	observability.LogRunComplete(logger, runID, float64(duration.Milliseconds()),
		len(result.Results)-len(result.Skipped), len(result.Failed), len(result.Skipped))
	return result, nil
}

// runState carries the mutable bookkeeping of one run.
type runState struct {
	graph      *Graph
	cfg        *runConfig
	dispatcher *event.Dispatcher
	ec         *executionContext
	execCtx    context.Context
	result     *RunResult

	// builds counts build attempts per vertex, bounding loop revisits
	// and notify re-activation cascades.
	builds map[string]int

	// active records the restricted active-output set of built router
	// vertices. Absent key means all outputs are active.
	active map[string][]string

	lastVertex string
}

// drain processes the work queue until empty. Re-entrant constructs (loop
// revisits, state activation) append to the queue as they fire.
func (r *runState) drain(queue []string) error {
	scheduled := make(map[string]bool, len(queue))
	for _, id := range queue {
		scheduled[id] = true
	}

	for i := 0; i < len(queue); i++ {
		id := queue[i]
		delete(scheduled, id)
		v, err := r.graph.Vertex(id)
		if err != nil {
			return err
		}
		if v.state != StatePending {
			continue
		}
		r.lastVertex = id

		// Cancellation gate: stop scheduling once the caller is gone.
		// The in-flight build (if any) already terminated cooperatively.
		select {
		case <-r.ec.Done():
			return &CancellationError{VertexID: id, Cause: r.ec.Err()}
		default:
		}

		if r.allIncomingInactive(v) {
			v.state = StateInactive
			continue
		}

		if upstream := r.failedUpstream(v); upstream != "" {
			r.skip(v, upstream)
			continue
		}

		// State re-activation resets vertices that may sit earlier in the
		// queue than their rebuilt upstream. Defer until the upstream's
		// scheduled rebuild has run.
		if r.pendingUpstream(v, scheduled) != "" {
			if !scheduled[id] {
				queue = append(queue, id)
				scheduled[id] = true
			}
			continue
		}

		rec, res, buildErr := r.buildVertex(v)
		r.result.Results = append(r.result.Results, rec)
		r.persist(&rec, v)

		if buildErr == nil {
			queue, buildErr = r.applyResult(v, res, queue, i, scheduled)
		}
		if buildErr != nil {
			r.result.Failed = append(r.result.Failed, id)
			if r.cfg.policy == PolicyAbort {
				return fmt.Errorf("%w: %s", ErrRunAborted, buildErr)
			}
			continue
		}
	}
	return nil
}

// applyResult handles a successful build's scheduler feedback: loop
// revisits, router branch deactivation, and state-vertex notification.
// A router that selects an undeclared output socket fails the vertex.
func (r *runState) applyResult(v *Vertex, res component.Result, queue []string, i int, scheduled map[string]bool) ([]string, error) {
	if res.ActiveOutputs != nil {
		r.active[v.ID] = res.ActiveOutputs
		for _, name := range res.ActiveOutputs {
			if _, ok := v.component.Meta().Output(name); !ok {
				rerr := &RouterError{VertexID: v.ID, Output: name}
				rec := &r.result.Results[len(r.result.Results)-1]
				v.fail(rec, rerr, "")
				return queue, rerr
			}
		}
	}

	if res.Rerun {
		// Re-emit the loop vertex as the immediate next task so it
		// iterates to completion before dependents build.
		v.reset()
		if !scheduled[v.ID] {
			queue = insertAt(queue, i+1, v.ID)
			scheduled[v.ID] = true
		}
	}

	if res.Notify != "" {
		for _, listener := range r.graph.ActivateStateVertices(res.Notify, v.ID) {
			queue = r.reactivate(listener, queue, scheduled)
		}
		r.graph.takeActivated()
	}

	return queue, nil
}

// reactivate resets a state vertex and its dependents and appends them to
// the queue in dependency order.
func (r *runState) reactivate(id string, queue []string, scheduled map[string]bool) []string {
	ids := append([]string{id}, r.graph.Dependents(id)...)

	// Preserve topological order among the re-activated set.
	order := make(map[string]int, len(queue))
	for pos, qid := range r.graph.BuildOrder() {
		order[qid] = pos
	}
	sortByOrder(ids, order)

	for _, rid := range ids {
		v, err := r.graph.Vertex(rid)
		if err != nil {
			continue
		}
		v.reset()
		if !scheduled[rid] {
			queue = append(queue, rid)
			scheduled[rid] = true
		}
	}
	return queue
}

// buildVertex runs one vertex build with timeout/retry policy, emitting
// lifecycle events and recording observability data.
func (r *runState) buildVertex(v *Vertex) (ResultData, component.Result, error) {
	evtOpts := []event.Option{event.WithRunID(r.ec.RunID()), event.WithVertexID(v.ID)}

	r.builds[v.ID]++
	if r.builds[v.ID] > r.cfg.maxLoopIterations {
		lerr := &LoopLimitError{VertexID: v.ID, Max: r.cfg.maxLoopIterations}
		rec := ResultData{
			VertexID:      v.ID,
			ComponentType: v.Type,
			BuildID:       uuid.New().String(),
		}
		v.fail(&rec, lerr, "")
		// The rejected attempt still gets its before/error pair so a
		// streaming client sees why the vertex failed.
		r.dispatcher.Publish(r.execCtx, event.New(event.KindBefore, "vertex.build",
			map[string]any{"vertex_id": v.ID, "component_type": v.Type, "params": v.Params},
			evtOpts...))
		r.dispatcher.Publish(r.execCtx, event.New(event.KindError, "vertex.build",
			event.ErrorPayload{Message: lerr.Error(), Cause: lerr.Error()}, evtOpts...))
		observability.LogVertexError(r.ec.logger, v.ID, lerr)
		return rec, component.Result{}, lerr
	}

	r.dispatcher.Publish(r.execCtx, event.New(event.KindBefore, "vertex.build",
		map[string]any{"vertex_id": v.ID, "component_type": v.Type, "params": v.Params},
		evtOpts...))

	var (
		rec ResultData
		res component.Result
		err error
	)

	attempts := r.cfg.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		vctx := r.ec.withVertex(v.ID, attempt)
		observability.LogVertexStart(vctx.logger, v.ID, attempt)

		var buildCtx context.Context = vctx
		var vertexSpan trace.Span
		if r.cfg.tracingEnabled {
			buildCtx, vertexSpan = r.cfg.spans.StartVertexSpan(r.execCtx, v.ID)
		}

		var cancel context.CancelFunc
		if r.cfg.vertexTimeout > 0 {
			buildCtx, cancel = context.WithTimeout(buildCtx, r.cfg.vertexTimeout)
		}

		rec, res, err = v.build(buildCtx)
		timedOut := cancel != nil && buildCtx.Err() == context.DeadlineExceeded && r.ec.Err() == nil
		if cancel != nil {
			cancel()
		}

		r.cfg.metrics.RecordVertexBuild(r.execCtx, v.ID, rec.Duration, err)
		if r.cfg.tracingEnabled {
			r.cfg.spans.EndSpanWithError(vertexSpan, err)
		}

		if err == nil {
			break
		}
		if !timedOut || attempt == attempts {
			if timedOut {
				err = &VertexError{VertexID: v.ID, Op: "build", Message: ErrVertexTimeout.Error(), Err: ErrVertexTimeout}
				v.fail(&rec, err, "")
			}
			break
		}

		// Soft time limit hit with retries left: fixed backoff, then
		// another attempt.
		vctx.logger.Warn("vertex build timed out, retrying",
			"vertex_id", v.ID, "attempt", attempt)
		select {
		case <-time.After(r.cfg.retryBackoff):
		case <-r.ec.Done():
			err = &CancellationError{VertexID: v.ID, Cause: r.ec.Err(), WasExecuting: true}
			v.fail(&rec, err, "")
			attempt = attempts
		}
		if attempt < attempts {
			v.reset()
		}
	}

	for _, line := range res.Logs {
		r.dispatcher.Publish(r.execCtx, event.New(event.KindLog, "vertex.build", line, evtOpts...))
	}
	if len(res.Artifacts) > 0 {
		r.dispatcher.Publish(r.execCtx, event.New(event.KindArtifact, "vertex.build", res.Artifacts, evtOpts...))
	}

	if err != nil {
		observability.LogVertexError(r.ec.logger, v.ID, err)
		payload := event.ErrorPayload{Message: err.Error(), Cause: err.Error()}
		if errors.Is(err, ErrUnknownComponentType) || errors.Is(err, ErrNoComponentInstance) {
			payload.Suggestion = "this component may be outdated; rebuild the flow from the current component set"
		}
		r.dispatcher.Publish(r.execCtx, event.New(event.KindError, "vertex.build", payload, evtOpts...))
		return rec, res, err
	}

	observability.LogVertexComplete(r.ec.logger, v.ID, float64(rec.Duration.Milliseconds()))
	r.dispatcher.Publish(r.execCtx, event.New(event.KindAfter, "vertex.build", rec, evtOpts...))
	return rec, res, nil
}

// skip marks a vertex as skipped because an upstream failed.
func (r *runState) skip(v *Vertex, failedUpstream string) {
	rec := ResultData{
		VertexID:      v.ID,
		ComponentType: v.Type,
		BuildID:       uuid.New().String(),
		Skipped:       true,
		Error: &BuildError{
			Message: fmt.Sprintf("skipped due to upstream failure: %s", failedUpstream),
		},
	}
	v.state = StateSkipped
	v.result = &rec
	r.result.Results = append(r.result.Results, rec)
	r.result.Skipped = append(r.result.Skipped, v.ID)
	observability.LogVertexSkipped(r.ec.logger, v.ID, failedUpstream)
	r.persist(&rec, v)
}

// persist writes the build record to the configured build log.
// Write failures are non-fatal to the run.
func (r *runState) persist(rec *ResultData, v *Vertex) {
	if r.cfg.logStore == nil || r.graph.FlowID == "" {
		return
	}
	errMsg := ""
	if rec.Error != nil {
		errMsg = rec.Error.Message
	}
	pruned, err := r.cfg.logStore.LogVertexBuild(r.execCtx, &buildlog.Entry{
		BuildID:   rec.BuildID,
		FlowID:    r.graph.FlowID,
		VertexID:  rec.VertexID,
		Timestamp: time.Now(),
		Data:      rec.Outputs,
		Params:    v.Params,
		Artifacts: rec.Artifacts,
		Valid:     rec.Valid,
		Error:     errMsg,
	})
	if err != nil {
		observability.LogBuildLogError(r.ec.logger, rec.VertexID, err)
		return
	}
	r.cfg.metrics.RecordLogPrune(r.execCtx, pruned)
}

// failedUpstream returns the id of a failed or skipped upstream, if any.
func (r *runState) failedUpstream(v *Vertex) string {
	for _, e := range v.incoming {
		src, err := r.graph.Vertex(e.Source)
		if err != nil {
			continue
		}
		if src.state == StateFailed || src.state == StateSkipped {
			return src.ID
		}
	}
	return ""
}

// pendingUpstream returns the id of an unbuilt upstream that is scheduled
// for a later queue position, if any.
func (r *runState) pendingUpstream(v *Vertex, scheduled map[string]bool) string {
	for _, e := range v.incoming {
		src, err := r.graph.Vertex(e.Source)
		if err != nil {
			continue
		}
		if src.state == StatePending && scheduled[src.ID] {
			return src.ID
		}
	}
	return ""
}

// allIncomingInactive reports whether every incoming edge is dead: its
// source is inactive, or the source is a router whose active outputs
// exclude this edge. Vertices with no incoming edges are always live.
func (r *runState) allIncomingInactive(v *Vertex) bool {
	if len(v.incoming) == 0 {
		return false
	}
	for _, e := range v.incoming {
		src, err := r.graph.Vertex(e.Source)
		if err != nil {
			return false
		}
		if src.state == StateInactive {
			continue
		}
		if active, ok := r.active[e.Source]; ok && !contains(active, e.SourceOutput) {
			continue
		}
		return false
	}
	return true
}

func insertAt(queue []string, pos int, id string) []string {
	queue = append(queue, "")
	copy(queue[pos+1:], queue[pos:])
	queue[pos] = id
	return queue
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func sortByOrder(ids []string, order map[string]int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && order[ids[j]] < order[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
