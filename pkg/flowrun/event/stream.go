package event

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// CleanupFunc runs when a stream's client disconnects. It may block (an
// async cleanup wrapped in a function). Errors are not swallowed by the
// stream: they propagate to whatever supervises the response lifecycle.
type CleanupFunc func(ctx context.Context) error

// flusher is the subset of http.Flusher the stream needs.
type flusher interface {
	Flush()
}

// Stream encodes events for server-sent-event style delivery: one
// "data: <json>" frame per event, flushed immediately so consumers can
// process events without buffering.
//
// The cleanup callback fires exactly once per stream, whether the
// disconnect is observed before or after OnDisconnect is called.
type Stream struct {
	w     io.Writer
	flush func()

	mu           sync.Mutex
	cleanup      CleanupFunc
	disconnected bool
	cleanupDone  bool
}

// NewStream creates a stream over w. If w implements Flush (as
// http.ResponseWriter does), each event is flushed as it is written.
func NewStream(w io.Writer) *Stream {
	s := &Stream{w: w, flush: func() {}}
	if f, ok := w.(flusher); ok {
		s.flush = f.Flush
	}
	return s
}

// OnDisconnect registers the cleanup callback. If the disconnect was
// already observed, the callback fires immediately and its error is
// returned; otherwise it fires when Serve observes the disconnect.
func (s *Stream) OnDisconnect(fn CleanupFunc) error {
	s.mu.Lock()
	s.cleanup = fn
	fireNow := s.disconnected && !s.cleanupDone && fn != nil
	if fireNow {
		s.cleanupDone = true
	}
	s.mu.Unlock()

	if fireNow {
		return fn(context.Background())
	}
	return nil
}

// WriteEvent encodes and writes one event frame.
func (s *Stream) WriteEvent(evt Event) error {
	data, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event %s: %w", evt.ID, err)
	}
	s.flush()
	return nil
}

// Serve writes events from the channel until the channel closes or ctx is
// done. A done ctx (and likewise a write failure) is treated as client
// disconnection: the cleanup callback is invoked exactly once and its
// error, if any, is returned to the caller supervising the response.
func (s *Stream) Serve(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			if err := s.markDisconnected(context.WithoutCancel(ctx)); err != nil {
				return fmt.Errorf("stream cleanup after disconnect: %w", err)
			}
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.WriteEvent(evt); err != nil {
				if cerr := s.markDisconnected(context.WithoutCancel(ctx)); cerr != nil {
					return fmt.Errorf("stream cleanup after write failure: %w", cerr)
				}
				return err
			}
		}
	}
}

// markDisconnected records the disconnect and fires the cleanup callback
// if one is registered and has not fired yet.
func (s *Stream) markDisconnected(ctx context.Context) error {
	s.mu.Lock()
	s.disconnected = true
	fn := s.cleanup
	fireNow := fn != nil && !s.cleanupDone
	if fireNow {
		s.cleanupDone = true
	}
	s.mu.Unlock()

	if fireNow {
		return fn(ctx)
	}
	return nil
}
