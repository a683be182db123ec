// Package bridge implements the AsyncBridge of spec.md §4.7: a single
// long-lived worker goroutine hosts a cooperative "event loop" (in Go
// terms, a job queue drained serially by one goroutine), so that
// synchronous callers can submit work and block for its result, and so
// that streaming consumers can drain progress events without the core
// ever constructing an ad-hoc goroutine-per-call scheduler.
//
// Grounded on internal/orchestrator/pool.go's WorkerPool.Execute (fixed
// goroutines draining a task channel), generalized from "N workers, one
// task each, then done" to "one worker, forever, FIFO job queue".
package bridge

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"deepresearch/internal/types"
)

type loopIDKey struct{}

// LoopID extracts the identifier of the worker loop a job is executing on,
// if any. Two jobs submitted to the same Bridge always observe the same
// ID, since the worker goroutine (and therefore the "loop") is started at
// most once per Bridge — this is the property spec.md §8 tests ("two
// successive run_sync of a coroutine returning id(current loop) yield
// equal values").
func LoopID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(loopIDKey{}).(string)
	return id, ok
}

type task struct {
	fn func(ctx context.Context)
}

// Bridge is the AsyncBridge. The zero value is not usable; construct with
// New.
type Bridge struct {
	startOnce sync.Once
	jobs      chan task
	ctx       context.Context
	cancel    context.CancelFunc
	loopID    string
}

// New creates a Bridge. The worker goroutine is not started until the
// first Run or Stream call, matching spec.md §4.7 ("starts the worker
// once").
func New() *Bridge {
	return &Bridge{}
}

func (b *Bridge) ensureStarted() {
	b.startOnce.Do(func() {
		b.ctx, b.cancel = context.WithCancel(context.Background())
		b.jobs = make(chan task, 64)
		b.loopID = uuid.NewString()
		go b.loop()
	})
}

func (b *Bridge) loop() {
	loopCtx := context.WithValue(b.ctx, loopIDKey{}, b.loopID)
	for {
		select {
		case <-b.ctx.Done():
			return
		case t := <-b.jobs:
			t.fn(loopCtx)
		}
	}
}

// Shutdown stops the worker loop. Jobs already queued are abandoned;
// in-flight work observes ctx cancellation at its next suspension point.
func (b *Bridge) Shutdown() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Run submits fn to the worker loop and blocks until it completes,
// returning its result. This is the core of spec.md §4.7's "run(awaitable)
// -> value": the awaitable is represented in Go as a function taking the
// loop's context.
func Run[T any](b *Bridge, fn func(ctx context.Context) (T, error)) (T, error) {
	b.ensureStarted()
	type result struct {
		v   T
		err error
	}
	resultCh := make(chan result, 1)
	b.jobs <- task{fn: func(ctx context.Context) {
		v, err := fn(ctx)
		resultCh <- result{v: v, err: err}
	}}
	r := <-resultCh
	return r.v, r.err
}

// Stream submits work to the worker loop and returns a channel of
// RunEvent values plus a wait function that blocks until work has
// finished and returns its error. The channel is unbuffered: work's emit
// calls block until the consumer reads, so the queue never drops an
// event, matching spec.md §9 ("Backpressure of the event stream").
// Callers must drain the returned channel to completion before calling
// wait, per spec.md §4.7 ("a captured exception is re-raised to the
// consumer after drain").
func (b *Bridge) Stream(work func(ctx context.Context, emit func(types.RunEvent)) error) (<-chan types.RunEvent, func() error) {
	b.ensureStarted()
	events := make(chan types.RunEvent)
	errCh := make(chan error, 1)

	b.jobs <- task{fn: func(ctx context.Context) {
		err := work(ctx, func(e types.RunEvent) {
			events <- e
		})
		close(events)
		errCh <- err
	}}

	wait := func() error { return <-errCh }
	return events, wait
}
