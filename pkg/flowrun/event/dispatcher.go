package event

import (
	"context"
	"log/slog"
)

// Dispatcher publishes lifecycle events around operations.
//
// A nil sink is valid: publication is skipped with a warning log. Sink
// errors are likewise logged and swallowed - observability must never be
// able to break the underlying operation.
type Dispatcher struct {
	sink   Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher for the given sink (may be nil).
func NewDispatcher(sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sink: sink, logger: logger}
}

// HasSink reports whether a sink is configured.
func (d *Dispatcher) HasSink() bool {
	return d != nil && d.sink != nil
}

// Publish delivers one event, logging and swallowing any failure.
func (d *Dispatcher) Publish(ctx context.Context, evt Event) {
	if d == nil {
		return
	}
	if d.sink == nil {
		d.logger.Warn("no event sink configured, dropping event",
			slog.String("kind", string(evt.Kind)),
			slog.String("operation", evt.Operation),
		)
		return
	}
	if err := d.sink.Publish(ctx, evt); err != nil {
		d.logger.Warn("build event dropped",
			slog.String("kind", string(evt.Kind)),
			slog.String("operation", evt.Operation),
			slog.String("error", err.Error()),
		)
	}
}

// Wrap surrounds fn with lifecycle events: one before event carrying
// inputs, then exactly one of after (carrying fn's result) or error
// (carrying the failure summary). fn's result and error pass through
// unchanged.
func (d *Dispatcher) Wrap(ctx context.Context, operation string, inputs any, fn func(ctx context.Context) (any, error), opts ...Option) (any, error) {
	d.Publish(ctx, New(KindBefore, operation, inputs, opts...))

	out, err := fn(ctx)
	if err != nil {
		d.Publish(ctx, New(KindError, operation, ErrorPayload{
			Message: err.Error(),
			Cause:   err.Error(),
		}, opts...))
		return out, err
	}

	d.Publish(ctx, New(KindAfter, operation, out, opts...))
	return out, nil
}
