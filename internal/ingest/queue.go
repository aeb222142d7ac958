// Package ingest implements the bounded read-ahead queue and worker pairing
// of spec §4.2, decoupling socket reads from insert processing.
package ingest

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed is returned by Push once the queue has been closed, and
// signals the reader task to terminate (§4.2).
var ErrQueueClosed = errors.New("ingest: queue closed")

// Queue is the one-slot (capacity 1) bounded blocking queue of §4.2: a
// single pending request plus a close signal both ends observe.
type Queue[T any] struct {
	slot   chan T
	closed chan struct{}
}

// NewQueue builds an empty, open queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{slot: make(chan T, 1), closed: make(chan struct{})}
}

// Push blocks until the single slot is free, a close wins the race, or ctx
// is done. Returns ErrQueueClosed once Close has been called.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	select {
	case q.slot <- v:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop returns the next pushed value, or ok=false once the queue has been
// drained and closed (§4.2: "pop returns false once the queue is drained
// and marked last").
func (q *Queue[T]) Pop(ctx context.Context) (v T, ok bool, err error) {
	select {
	case v = <-q.slot:
		return v, true, nil
	case <-q.closed:
		select {
		case v = <-q.slot:
			return v, true, nil
		default:
			var zero T
			return zero, false, nil
		}
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Close marks the queue closed, causing any blocked or future Push to
// observe ErrQueueClosed. Safe to call more than once.
func (q *Queue[T]) Close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}

// Run drives the §4.2 reader/worker pairing: read spawns a goroutine that
// pushes items produced by next() until it returns an error (including
// io.EOF-like stream termination, which it should map to ErrQueueClosed or
// a nil-returning sentinel handled by the caller); process consumes popped
// items until Pop reports !ok. Either side returning an error cancels the
// other via errgroup and the queue is always closed on exit, matching
// §4.2's "scoped acquisition with guaranteed release".
func Run[T any](ctx context.Context, q *Queue[T], read func(ctx context.Context, push func(T) error) error, process func(ctx context.Context, v T) error) error {
	defer q.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer q.Close()
		return read(gctx, func(v T) error { return q.Push(gctx, v) })
	})
	g.Go(func() error {
		for {
			v, ok, err := q.Pop(gctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := process(gctx, v); err != nil {
				return err
			}
		}
	})
	return g.Wait()
}
