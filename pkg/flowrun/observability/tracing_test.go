package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest installs a tracer provider with an in-memory exporter and
// rebinds the package tracer to it.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("flowrun")

	cleanup := func() {
		otel.SetTracerProvider(original)
		tracer = otel.Tracer("flowrun")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down tracer provider: %v", err)
		}
	}
	return exporter, cleanup
}

func TestSpanManager_StartRunSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()
	ctx := context.Background()

	newCtx, span := sm.StartRunSpan(ctx, "flow-1", "run-123")
	require.NotNil(t, span)
	assert.NotEqual(t, ctx, newCtx)

	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "flowrun.run", s.Name)

	var flowID, runID string
	for _, attr := range s.Attributes {
		switch attr.Key {
		case "flow.id":
			flowID = attr.Value.AsString()
		case "run.id":
			runID = attr.Value.AsString()
		}
	}
	assert.Equal(t, "flow-1", flowID)
	assert.Equal(t, "run-123", runID)
}

func TestSpanManager_StartVertexSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("names span after the vertex", func(t *testing.T) {
		_, span := sm.StartVertexSpan(context.Background(), "upper")
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "flowrun.vertex.upper", spans[0].Name)

		var vertexID string
		for _, attr := range spans[0].Attributes {
			if attr.Key == "vertex.id" {
				vertexID = attr.Value.AsString()
			}
		}
		assert.Equal(t, "upper", vertexID)
	})

	t.Run("vertex span is a child of the run span", func(t *testing.T) {
		exporter.Reset()

		ctx, runSpan := sm.StartRunSpan(context.Background(), "flow-1", "run-1")
		_, vertexSpan := sm.StartVertexSpan(ctx, "v1")
		vertexSpan.End()
		runSpan.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)

		var child *tracetest.SpanStub
		for i := range spans {
			if spans[i].Name == "flowrun.vertex.v1" {
				child = &spans[i]
			}
		}
		require.NotNil(t, child)
		assert.True(t, child.Parent.IsValid())
	})
}

func TestSpanManager_EndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("nil error sets OK status", func(t *testing.T) {
		_, span := sm.StartRunSpan(context.Background(), "flow", "run-1")
		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("error sets status and records exception", func(t *testing.T) {
		exporter.Reset()

		_, span := sm.StartRunSpan(context.Background(), "flow", "run-2")
		sm.EndSpanWithError(span, errors.New("vertex build failed"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		s := spans[0]
		assert.Equal(t, codes.Error, s.Status.Code)
		assert.Equal(t, "vertex build failed", s.Status.Description)

		var recorded bool
		for _, event := range s.Events {
			if event.Name == "exception" {
				recorded = true
			}
		}
		assert.True(t, recorded)
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(nil, nil)
			sm.EndSpanWithError(nil, errors.New("x"))
		})
	})
}

func TestSpanManager_AddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("attaches event to the current span", func(t *testing.T) {
		ctx, span := sm.StartRunSpan(context.Background(), "flow", "run-1")

		sm.AddSpanEvent(ctx, "build_log_pruned",
			attribute.String("vertex_id", "v1"),
			attribute.Int64("rows", 3),
		)
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		var found bool
		for _, event := range spans[0].Events {
			if event.Name == "build_log_pruned" {
				found = true
				var rows int64
				for _, attr := range event.Attributes {
					if attr.Key == "rows" {
						rows = attr.Value.AsInt64()
					}
				}
				assert.Equal(t, int64(3), rows)
			}
		}
		assert.True(t, found)
	})

	t.Run("no current span is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(context.Background(), "orphan_event")
		})
	})
}
