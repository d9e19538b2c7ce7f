package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telecare/domain/event"
)

// ChannelSink bridges event producers and one connection's write loop.
// Consume hands the event to the owning connection; the transport handler
// drains Events and writes to the wire.
type ChannelSink struct {
	Events chan event.Event

	timeout   time.Duration
	closeOnce sync.Once
	done      chan struct{}
}

func NewChannelSink(bufferSize int, timeout time.Duration) *ChannelSink {
	return &ChannelSink{
		Events:  make(chan event.Event, bufferSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Consume enqueues an event for the connection. It fails when the sink is
// closed, the context ends, or the buffer stays full past the timeout, so
// callers know live delivery did not happen.
func (s *ChannelSink) Consume(ctx context.Context, e event.Event) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return fmt.Errorf("sink closed")
	default:
	}

	select {
	case s.Events <- e:
		return nil
	case <-s.done:
		return fmt.Errorf("sink closed")
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("sink saturated after %s", s.timeout)
	}
}

// Close wakes the connection's write loop and fails pending Consume calls.
// Safe to call more than once.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done signals the owning write loop that the sink was shut down, typically
// because a newer connection for the same user evicted this one.
func (s *ChannelSink) Done() <-chan struct{} {
	return s.done
}
