// Package observability provides structured logging, metrics, and tracing
// for the graph execution engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with run_id, vertex_id, and attempt fields.
func EnrichLogger(logger *slog.Logger, runID, vertexID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("vertex_id", vertexID),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a graph run.
func LogRunStart(logger *slog.Logger, runID, flowID string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("run_id", runID),
		slog.String("flow_id", flowID),
	)
}

// LogRunComplete logs successful graph run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, built, failed, skipped int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("vertices_built", built),
		slog.Int("vertices_failed", failed),
		slog.Int("vertices_skipped", skipped),
	)
}

// LogRunError logs graph run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastVertex string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_vertex", lastVertex),
	)
}

// LogVertexStart logs vertex build start.
func LogVertexStart(logger *slog.Logger, vertexID string, attempt int) {
	if logger == nil {
		return
	}
	logger.Debug("vertex building",
		slog.String("vertex_id", vertexID),
		slog.Int("attempt", attempt),
	)
}

// LogVertexComplete logs successful vertex build.
func LogVertexComplete(logger *slog.Logger, vertexID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("vertex built",
		slog.String("vertex_id", vertexID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogVertexError logs vertex build failure.
func LogVertexError(logger *slog.Logger, vertexID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("vertex build failed",
		slog.String("vertex_id", vertexID),
		slog.String("error", err.Error()),
	)
}

// LogVertexSkipped logs a cascade skip.
func LogVertexSkipped(logger *slog.Logger, vertexID, failedUpstream string) {
	if logger == nil {
		return
	}
	logger.Warn("vertex skipped due to upstream failure",
		slog.String("vertex_id", vertexID),
		slog.String("failed_upstream", failedUpstream),
	)
}

// LogCacheHit logs a session cache hit.
func LogCacheHit(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Debug("session cache hit", slog.String("key", key))
}

// LogCacheMiss logs a session cache miss.
func LogCacheMiss(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Debug("session cache miss", slog.String("key", key))
}

// LogBuildLogError logs a build-log write failure (non-fatal to the run).
func LogBuildLogError(logger *slog.Logger, vertexID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("build log write failed",
		slog.String("vertex_id", vertexID),
		slog.String("error", err.Error()),
	)
}

// LogEventDropped logs a lifecycle event that could not be published.
// Observability must never break the wrapped operation, so publication
// failures are logged and swallowed.
func LogEventDropped(logger *slog.Logger, kind, operation string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("build event dropped",
		slog.String("kind", kind),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
