package event

import (
	"context"
	"sync"
)

// Sink receives events from a dispatcher.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Publish delivers one event. Errors are logged by the dispatcher
	// and never fail the operation that produced the event.
	Publish(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, evt Event) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// ChannelSink delivers events to a channel, for bridging to a stream.
// Publish blocks until the event is accepted or ctx is done, so slow
// consumers exert backpressure on the producer.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Publish implements Sink.
func (s *ChannelSink) Publish(ctx context.Context, evt Event) error {
	select {
	case s.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Close closes the event channel. Publish must not be called after Close.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// CollectorSink records every published event, for tests.
type CollectorSink struct {
	mu     sync.Mutex
	events []Event
}

// NewCollectorSink creates an empty collector.
func NewCollectorSink() *CollectorSink {
	return &CollectorSink{}
}

// Publish implements Sink.
func (s *CollectorSink) Publish(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// Events returns a snapshot of the collected events in publish order.
func (s *CollectorSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the kinds of collected events in publish order.
func (s *CollectorSink) Kinds() []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Kind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}
