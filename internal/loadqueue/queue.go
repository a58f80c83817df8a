// Package loadqueue runs tasks one at a time in the order they were
// submitted.
//
// The game-system registry relies on it to serialise catalog initialisation
// and evaluator loading: the catalog task is enqueued first, so every lookup
// that follows observes an initialised catalog without waiting on a separate
// readiness signal.
//
// A failed task never blocks later ones. Each task runs under an optional
// timeout; when a task overruns it, the queue reports [ErrTaskTimeout] to the
// submitter and moves on. The task's context is cancelled but the task itself
// keeps running until it returns, so from that point on it may run alongside
// later tasks: one active task at a time holds only while every task
// finishes within the timeout. Whatever side effects an abandoned task has
// when it eventually returns still happen; its result is discarded.
package loadqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned for tasks submitted to, or still pending in, a
// closed [Queue].
var ErrQueueClosed = errors.New("loadqueue: queue closed")

// ErrTaskTimeout is returned when a task does not finish within the queue's
// task timeout.
var ErrTaskTimeout = errors.New("loadqueue: task timed out")

// job is a single queued unit of work.
type job struct {
	ctx    context.Context
	exec   func(ctx context.Context) error
	settle func(err error)
}

// Queue is a single-worker FIFO task queue. It is safe for concurrent use.
type Queue struct {
	name    string
	timeout time.Duration

	mu      sync.Mutex
	pending []*job
	closed  bool

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// Option configures a [Queue].
type Option func(*Queue)

// WithName sets the name used in log messages.
func WithName(name string) Option {
	return func(q *Queue) { q.name = name }
}

// WithTaskTimeout bounds how long a single task may run. Zero disables the
// bound. The default is 10 seconds.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.timeout = d
		}
	}
}

// New creates a queue and starts its worker goroutine. Call [Queue.Close] to
// stop it.
func New(opts ...Option) *Queue {
	q := &Queue{
		name:    "loadqueue",
		timeout: 10 * time.Second,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	go q.loop()
	return q
}

// Len returns the number of tasks waiting to run, excluding the active one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the worker. Pending tasks are settled with [ErrQueueClosed].
// Close waits for the active task to finish (or time out). It is safe to call
// more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	close(q.stop)
	for _, j := range pending {
		j.settle(ErrQueueClosed)
	}
	<-q.stopped
}

func (q *Queue) enqueue(j *job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// next pops the head of the queue, blocking until a job is available or the
// queue is closed.
func (q *Queue) next() (*job, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return j, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.stop:
			return nil, false
		}
	}
}

func (q *Queue) loop() {
	defer close(q.stopped)
	for {
		j, ok := q.next()
		if !ok {
			return
		}
		q.execute(j)
	}
}

// execute runs j on a helper goroutine so that an overrunning task can be
// abandoned once the timeout fires.
func (q *Queue) execute(j *job) {
	if err := j.ctx.Err(); err != nil {
		j.settle(err)
		return
	}

	ctx, cancel := j.ctx, context.CancelFunc(func() {})
	var timeout <-chan time.Time
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(j.ctx, q.timeout)
		timer := time.NewTimer(q.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	defer cancel()

	finished := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				finished <- fmt.Errorf("loadqueue: task panicked: %v", r)
			}
		}()
		finished <- j.exec(ctx)
	}()

	select {
	case err := <-finished:
		j.settle(err)
	case <-timeout:
		slog.Warn("loadqueue: task exceeded timeout, advancing queue",
			"queue", q.name,
			"timeout", q.timeout,
			"pending", q.Len(),
		)
		j.settle(fmt.Errorf("%w after %s", ErrTaskTimeout, q.timeout))
	}
}

// Future is the pending result of a task submitted with [Go].
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the task has been settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task is settled or ctx is done. Abandoning the wait
// does not remove the task from the queue; it still runs unless its own
// context has been cancelled by then.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go enqueues fn and returns immediately. fn receives a context derived from
// ctx that carries the queue's task timeout.
func Go[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	var val T
	j := &job{
		ctx: ctx,
		exec: func(ctx context.Context) error {
			v, err := fn(ctx)
			val = v
			return err
		},
		settle: func(err error) {
			// val is only read when exec has returned successfully.
			if err == nil {
				f.val = val
			}
			f.err = err
			close(f.done)
		},
	}
	if err := q.enqueue(j); err != nil {
		f.err = err
		close(f.done)
	}
	return f
}

// Submit enqueues fn and waits for its result.
func Submit[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	return Go(ctx, q, fn).Wait(ctx)
}
