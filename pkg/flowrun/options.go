package flowrun

import (
	"time"

	"github.com/flowrun/flowrun/pkg/flowrun/buildlog"
	"github.com/flowrun/flowrun/pkg/flowrun/config"
	"github.com/flowrun/flowrun/pkg/flowrun/event"
	"github.com/flowrun/flowrun/pkg/flowrun/observability"
)

// FailurePolicy decides what happens to the rest of a run when one vertex
// fails.
type FailurePolicy int

const (
	// PolicyContinue records the failure, skips the failed vertex's
	// transitive dependents, and keeps building independent vertices.
	PolicyContinue FailurePolicy = iota

	// PolicyAbort stops scheduling after the first failure; the run error
	// names the failing vertex.
	PolicyAbort
)

// runConfig holds configuration for one graph run.
type runConfig struct {
	policy            FailurePolicy
	maxLoopIterations int
	vertexTimeout     time.Duration
	maxRetries        int
	retryBackoff      time.Duration

	sink     event.Sink
	logStore buildlog.Store

	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	s := config.DefaultSettings()
	return runConfig{
		policy:            PolicyContinue,
		maxLoopIterations: s.MaxLoopIterations,
		vertexTimeout:     s.VertexTimeout,
		maxRetries:        s.MaxRetries,
		retryBackoff:      s.RetryBackoff,
		metrics:           observability.NoopMetrics{},
		spans:             observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithFailurePolicy selects the run-level failure policy.
// Default: PolicyContinue.
func WithFailurePolicy(p FailurePolicy) RunOption {
	return func(c *runConfig) {
		c.policy = p
	}
}

// WithSettings applies resolved engine settings to the run.
func WithSettings(s config.Settings) RunOption {
	return func(c *runConfig) {
		if s.MaxLoopIterations > 0 {
			c.maxLoopIterations = s.MaxLoopIterations
		}
		c.vertexTimeout = s.VertexTimeout
		c.maxRetries = s.MaxRetries
		if s.RetryBackoff > 0 {
			c.retryBackoff = s.RetryBackoff
		}
		if s.FailurePolicy == "abort" {
			c.policy = PolicyAbort
		}
	}
}

// WithMaxLoopIterations bounds loop-vertex revisits within one run.
// Values above the hard ceiling are clamped. Default: 100.
//
// A loop vertex that requests another pass beyond this bound fails with
// LoopLimitError.
func WithMaxLoopIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			if n > config.MaxLoopIterationsCeiling {
				n = config.MaxLoopIterationsCeiling
			}
			c.maxLoopIterations = n
		}
	}
}

// WithVertexTimeout sets a soft per-vertex build time limit.
// Zero (the default) disables the limit.
func WithVertexTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.vertexTimeout = d
	}
}

// WithMaxRetries sets how many times a timed-out vertex build is retried
// before the vertex is marked failed. Default: 0.
func WithMaxRetries(n int) RunOption {
	return func(c *runConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the fixed delay between build retries.
func WithRetryBackoff(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d >= 0 {
			c.retryBackoff = d
		}
	}
}

// WithEventSink streams build lifecycle events to the given sink.
// Without a sink, event publication is skipped (logged at warning level).
func WithEventSink(sink event.Sink) RunOption {
	return func(c *runConfig) {
		c.sink = sink
	}
}

// WithBuildLog persists per-vertex build records to the given store.
func WithBuildLog(store buildlog.Store) RunOption {
	return func(c *runConfig) {
		c.logStore = store
	}
}

// WithMetrics enables metrics recording for the run.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables span creation for the run and each vertex build.
func WithTracing(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracingEnabled = true
		}
	}
}
