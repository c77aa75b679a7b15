package pipeline

import (
	"context"

	"github.com/acksell/vogels/sdk/protocol"
)

// Promise is the pending result of an asynchronous execution. It
// completes exactly once, with a value or an error.
type Promise[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	value  T
	err    error
}

// Done is closed when the promise has completed.
func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Wait blocks until the promise completes or ctx expires. The execution
// keeps running after a Wait timeout; use Cancel to abort it.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-p.done:
		return p.value, p.err
	}
}

// Cancel aborts the execution. The promise still completes, with the
// cancellation error.
func (p *Promise[T]) Cancel() { p.cancel() }

// ExecuteAsync starts op on its own goroutine and returns a promise for
// the decoded output.
func (e *Executor) ExecuteAsync(ctx context.Context, op *protocol.OperationSchema, input protocol.Document) *Promise[protocol.Document] {
	ctx, cancel := context.WithCancel(ctx)
	p := &Promise[protocol.Document]{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(p.done)
		defer cancel()
		p.value, p.err = e.Execute(ctx, op, input)
	}()
	return p
}

// Then derives a promise by transforming another promise's outcome.
// Generated clients use it to decode raw documents into typed outputs.
// Cancelling the derived promise cancels the source execution.
func Then[T, U any](p *Promise[T], f func(T, error) (U, error)) *Promise[U] {
	out := &Promise[U]{done: make(chan struct{}), cancel: p.cancel}
	go func() {
		defer close(out.done)
		<-p.done
		out.value, out.err = f(p.value, p.err)
	}()
	return out
}

// Completed returns an already-completed promise.
func Completed[T any](value T, err error) *Promise[T] {
	p := &Promise[T]{done: make(chan struct{}), cancel: func() {}}
	p.value, p.err = value, err
	close(p.done)
	return p
}
