package config

import "time"

// Engine setting defaults and bounds.
const (
	// DefaultMaxLoopIterations bounds loop-vertex revisits per run.
	DefaultMaxLoopIterations = 100

	// MaxLoopIterationsCeiling is the hard upper bound on the configured
	// loop limit. Values above it are clamped.
	MaxLoopIterationsCeiling = 10000

	// DefaultMaxBuildsPerVertex is the per-vertex build log retention cap.
	DefaultMaxBuildsPerVertex = 10

	// DefaultMaxBuildsToKeep is the global build log retention cap.
	DefaultMaxBuildsToKeep = 1000

	// DefaultRetryBackoff is the fixed delay between vertex build retries.
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Settings are the resolved engine settings.
type Settings struct {
	// MaxLoopIterations bounds how many times a loop vertex may be
	// revisited within one run.
	MaxLoopIterations int

	// MaxBuildsPerVertex caps retained build-log rows per vertex id.
	MaxBuildsPerVertex int

	// MaxBuildsToKeep caps retained build-log rows per flow.
	MaxBuildsToKeep int

	// VertexTimeout is the soft per-vertex build time limit. Zero disables it.
	VertexTimeout time.Duration

	// MaxRetries is how many times a timed-out build is retried.
	MaxRetries int

	// RetryBackoff is the fixed delay between retries.
	RetryBackoff time.Duration

	// FailurePolicy is "continue" (cascade-skip dependents) or "abort".
	FailurePolicy string
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxLoopIterations:  DefaultMaxLoopIterations,
		MaxBuildsPerVertex: DefaultMaxBuildsPerVertex,
		MaxBuildsToKeep:    DefaultMaxBuildsToKeep,
		VertexTimeout:      0,
		MaxRetries:         0,
		RetryBackoff:       DefaultRetryBackoff,
		FailurePolicy:      "continue",
	}
}

// SettingsFrom resolves engine settings from a Config, applying defaults
// and clamping the loop iteration bound to its ceiling.
func SettingsFrom(c Config) Settings {
	s := DefaultSettings()
	s.MaxLoopIterations = c.Int("max_loop_iterations", s.MaxLoopIterations)
	if s.MaxLoopIterations < 1 {
		s.MaxLoopIterations = 1
	}
	if s.MaxLoopIterations > MaxLoopIterationsCeiling {
		s.MaxLoopIterations = MaxLoopIterationsCeiling
	}
	s.MaxBuildsPerVertex = c.Int("max_builds_per_vertex", s.MaxBuildsPerVertex)
	s.MaxBuildsToKeep = c.Int("max_builds_to_keep", s.MaxBuildsToKeep)
	s.VertexTimeout = c.Duration("vertex_timeout", s.VertexTimeout)
	s.MaxRetries = c.Int("max_retries", s.MaxRetries)
	s.RetryBackoff = c.Duration("retry_backoff", s.RetryBackoff)
	s.FailurePolicy = c.String("failure_policy", s.FailurePolicy)
	return s
}
