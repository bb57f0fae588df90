package flowrun

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context provides execution context to component builds.
// It extends context.Context with engine services and run metadata.
//
// Context is immutable after creation. The runner creates derived contexts
// per vertex with an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and vertex
	// context. Never returns nil - defaults to slog.Default().
	Logger() *slog.Logger

	// RunID returns the per-execution identifier. Auto-generated if not
	// configured.
	RunID() string

	// SessionID returns the logical session this run belongs to.
	// Empty for sessionless runs.
	SessionID() string

	// FlowID returns the owning flow id, empty for ad-hoc graphs.
	FlowID() string

	// VertexID returns the vertex currently building.
	// Empty before execution starts.
	VertexID() string

	// Attempt returns the build attempt number (1 = first attempt).
	Attempt() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger    *slog.Logger
	runID     string
	sessionID string
	flowID    string
	vertexID  string
	attempt   int
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger { return c.logger }

// RunID returns the run identifier.
func (c *executionContext) RunID() string { return c.runID }

// SessionID returns the session identifier.
func (c *executionContext) SessionID() string { return c.sessionID }

// FlowID returns the flow identifier.
func (c *executionContext) FlowID() string { return c.flowID }

// VertexID returns the current vertex identifier.
func (c *executionContext) VertexID() string { return c.vertexID }

// Attempt returns the build attempt number.
func (c *executionContext) Attempt() int { return c.attempt }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger is enriched with run_id, vertex_id, and attempt during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithRunID sets the run identifier. Auto-generated when not set.
func WithRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// WithSessionID sets the session identifier.
func WithSessionID(id string) ContextOption {
	return func(c *executionContext) {
		c.sessionID = id
	}
}

// WithFlowID sets the flow identifier.
func WithFlowID(id string) ContextOption {
	return func(c *executionContext) {
		c.flowID = id
	}
}

// NewContext creates an execution context from a standard context.
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
		attempt: 1,
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withVertex returns a derived context for one vertex build attempt.
func (c *executionContext) withVertex(vertexID string, attempt int) *executionContext {
	return &executionContext{
		Context:   c.Context,
		logger:    c.logger.With("run_id", c.runID, "vertex_id", vertexID, "attempt", attempt),
		runID:     c.runID,
		sessionID: c.sessionID,
		flowID:    c.flowID,
		vertexID:  vertexID,
		attempt:   attempt,
	}
}
