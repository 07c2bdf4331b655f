package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned for work submitted after Close, and delivered
// to queued work that never started because the queue shut down.
var ErrQueueClosed = errors.New("runner: queue closed")

// DefaultQueueSize bounds how many tasks may wait behind the running one.
const DefaultQueueSize = 64

// task is one unit of queued work. drop is called instead of run when the
// task is abandoned (shutdown or panic).
type task struct {
	label string
	run   func(ctx context.Context)
	drop  func(err error)
}

// Queue runs tasks one at a time in submission order on a single consumer
// goroutine. A task that panics is logged and abandoned; later tasks still
// run.
type Queue struct {
	tasks  chan task
	logger *slog.Logger

	mu       sync.RWMutex
	closed   bool
	stopping atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	depth     atomic.Int64
	startOnce sync.Once
	done      chan struct{}
}

// NewQueue creates a queue holding up to size waiting tasks.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Queue{
		tasks:  make(chan task, size),
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the consumer. Tasks run with a context detached from ctx's
// cancellation so that shutdown never kills an in-flight agent process.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		go q.consume(context.WithoutCancel(ctx))
	})
}

// Depth returns the number of tasks waiting or running.
func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

// enqueue appends t, blocking while the queue is full.
func (q *Queue) enqueue(ctx context.Context, t task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed || q.stopping.Load() {
		return ErrQueueClosed
	}

	q.depth.Add(1)
	select {
	case q.tasks <- t:
		return nil
	case <-q.stop:
		q.depth.Add(-1)
		return ErrQueueClosed
	case <-ctx.Done():
		q.depth.Add(-1)
		return ctx.Err()
	}
}

func (q *Queue) consume(ctx context.Context) {
	defer close(q.done)
	for t := range q.tasks {
		if q.stopping.Load() {
			t.drop(ErrQueueClosed)
		} else {
			q.runSafe(ctx, t)
		}
		q.depth.Add(-1)
	}
}

func (q *Queue) runSafe(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued task panicked", "label", t.label, "panic", r, "stack", string(debug.Stack()))
			t.drop(fmt.Errorf("runner: task %s panicked: %v", t.label, r))
		}
	}()
	t.run(ctx)
}

// Close stops accepting tasks, abandons those not yet started and waits for
// the running one until ctx expires. It returns ctx.Err() when the running
// task outlives ctx; that task is left running.
func (q *Queue) Close(ctx context.Context) error {
	q.stopping.Store(true)
	q.stopOnce.Do(func() { close(q.stop) })

	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	q.startOnce.Do(func() {
		// Never started: drain so dropped tasks still hear about it.
		go q.consume(context.Background())
	})

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
