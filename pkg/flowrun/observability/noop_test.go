package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowrun/flowrun/pkg/flowrun/observability"
)

func TestNoopMetrics(t *testing.T) {
	var m observability.MetricsRecorder = observability.NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordVertexBuild(ctx, "v", time.Millisecond, nil)
		m.RecordVertexBuild(ctx, "v", time.Millisecond, errors.New("x"))
		m.RecordGraphRun(ctx, true, time.Millisecond)
		m.RecordCacheLookup(ctx, false)
		m.RecordLogPrune(ctx, 10)
	})
}

func TestNoopSpanManager(t *testing.T) {
	var sm observability.SpanManager = observability.NoopSpanManager{}
	ctx := context.Background()

	runCtx, runSpan := sm.StartRunSpan(ctx, "flow", "run")
	assert.Equal(t, ctx, runCtx)
	assert.NotNil(t, runSpan)

	vertexCtx, vertexSpan := sm.StartVertexSpan(ctx, "v")
	assert.Equal(t, ctx, vertexCtx)
	assert.NotNil(t, vertexSpan)

	assert.NotPanics(t, func() {
		sm.EndSpanWithError(runSpan, nil)
		sm.EndSpanWithError(vertexSpan, errors.New("x"))
		sm.AddSpanEvent(ctx, "event")
	})
}

func TestNewSpanManager(t *testing.T) {
	sm := observability.NewSpanManager()
	ctx, span := sm.StartRunSpan(context.Background(), "flow", "run")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	sm.EndSpanWithError(span, nil)
}
