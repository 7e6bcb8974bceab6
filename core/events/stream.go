package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const streamBuffer = 32

// Stream delivers the progress of a single flow over a channel and exposes
// the final result once the flow returns. Abandoning a stream (cancelling
// its context) stops waiting; it never un-sends a submitted call.
type Stream[T any] struct {
	id     string
	events chan Progress
	done   chan struct{}

	once   sync.Once
	result T
	err    error
}

// Start runs fn in its own goroutine and returns the stream observing it.
func Start[T any](ctx context.Context, op string, fn func(ctx context.Context, emitter Emitter) (T, error)) *Stream[T] {
	s := &Stream[T]{
		id:     uuid.NewString(),
		events: make(chan Progress, streamBuffer),
		done:   make(chan struct{}),
	}
	emitter := EmitterFunc(func(evt Event) {
		p, ok := evt.(Progress)
		if !ok {
			return
		}
		p.StreamID = s.id
		select {
		case s.events <- p:
		case <-ctx.Done():
		}
	})
	go func() {
		result, err := fn(ctx, emitter)
		if err != nil {
			p := Progress{StreamID: s.id, Op: op, Stage: StageFailed, At: time.Now().UTC(), Error: err.Error()}
			select {
			case s.events <- p:
			default:
			}
		}
		s.finish(result, err)
	}()
	return s
}

func (s *Stream[T]) finish(result T, err error) {
	s.once.Do(func() {
		s.result = result
		s.err = err
		close(s.events)
		close(s.done)
	})
}

// ID returns the correlation identifier stamped on every event.
func (s *Stream[T]) ID() string { return s.id }

// Events returns the channel of progress reports. It is closed once the flow
// has returned.
func (s *Stream[T]) Events() <-chan Progress { return s.events }

// Done is closed once the flow has returned.
func (s *Stream[T]) Done() <-chan struct{} { return s.done }

// Wait blocks until the flow returns or ctx is cancelled.
func (s *Stream[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
