package rconkit

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Submit after the queue has been closed.
var ErrQueueClosed = errors.New("host queue closed")

// Executor is the host's command sink. It is only ever called from the
// goroutine consuming the WorkQueue.
type Executor interface {
	ExecuteCommand(line string, log bool)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(line string, log bool)

func (f ExecutorFunc) ExecuteCommand(line string, log bool) { f(line, log) }

// WorkQueue marshals work onto the host's single execution context. Submit is
// safe from any goroutine and never blocks; work runs once, in submission
// order, on whichever goroutine drives Run or RunPending.
type WorkQueue struct {
	mu      sync.Mutex
	pending []func()
	signal  chan struct{}
	closed  bool
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{signal: make(chan struct{}, 1)}
}

// Submit enqueues fn.
func (q *WorkQueue) Submit(fn func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// RunPending executes everything queued so far and returns how many items ran.
// Work submitted while it runs is left for the next call.
func (q *WorkQueue) RunPending() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Run consumes the queue until ctx is done or the queue is closed, then runs
// whatever was still pending.
func (q *WorkQueue) Run(ctx context.Context) error {
	for {
		q.RunPending()

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			q.RunPending()
			return nil
		}

		select {
		case <-ctx.Done():
			q.RunPending()
			return ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued items.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting work and wakes Run so it can drain and return.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}
