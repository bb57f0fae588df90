package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordVertexBuild records a vertex build with its duration and error status.
	RecordVertexBuild(ctx context.Context, vertexID string, duration time.Duration, err error)

	// RecordGraphRun records a graph run completion.
	RecordGraphRun(ctx context.Context, success bool, duration time.Duration)

	// RecordCacheLookup records a session cache lookup outcome.
	RecordCacheLookup(ctx context.Context, hit bool)

	// RecordLogPrune records build-log rows deleted by retention enforcement.
	RecordLogPrune(ctx context.Context, rows int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	vertexBuilds  metric.Int64Counter
	vertexLatency metric.Float64Histogram
	vertexErrors  metric.Int64Counter
	graphRuns     metric.Int64Counter
	graphLatency  metric.Float64Histogram
	cacheLookups  metric.Int64Counter
	logPruned     metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flowrun")

	vertexBuilds, err := meter.Int64Counter("flowrun.vertex.builds",
		metric.WithDescription("Number of vertex builds"),
	)
	if err != nil {
		return nil, err
	}

	vertexLatency, err := meter.Float64Histogram("flowrun.vertex.latency_ms",
		metric.WithDescription("Vertex build latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	vertexErrors, err := meter.Int64Counter("flowrun.vertex.errors",
		metric.WithDescription("Number of vertex build errors"),
	)
	if err != nil {
		return nil, err
	}

	graphRuns, err := meter.Int64Counter("flowrun.graph.runs",
		metric.WithDescription("Number of graph runs"),
	)
	if err != nil {
		return nil, err
	}

	graphLatency, err := meter.Float64Histogram("flowrun.graph.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter("flowrun.session.lookups",
		metric.WithDescription("Number of session cache lookups"),
	)
	if err != nil {
		return nil, err
	}

	logPruned, err := meter.Int64Counter("flowrun.buildlog.pruned_rows",
		metric.WithDescription("Build log rows deleted by retention caps"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		vertexBuilds:  vertexBuilds,
		vertexLatency: vertexLatency,
		vertexErrors:  vertexErrors,
		graphRuns:     graphRuns,
		graphLatency:  graphLatency,
		cacheLookups:  cacheLookups,
		logPruned:     logPruned,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordVertexBuild records a vertex build.
func (m *otelMetrics) RecordVertexBuild(ctx context.Context, vertexID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("vertex_id", vertexID),
	}

	m.vertexBuilds.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.vertexLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.vertexErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordGraphRun records a graph run.
func (m *otelMetrics) RecordGraphRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.graphRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCacheLookup records a session cache lookup.
func (m *otelMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// RecordLogPrune records retention-pruned rows.
func (m *otelMetrics) RecordLogPrune(ctx context.Context, rows int64) {
	if rows > 0 {
		m.logPruned.Add(ctx, rows)
	}
}
