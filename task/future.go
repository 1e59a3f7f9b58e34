// Package task provides the deferred execution primitives under the
// cache: a single assignment Future and a serial Executor.
package task

import (
	"context"
	"sync"

	"github.com/facebookgo/stackerr"
)

// Future is a single assignment container for a result of type T. The
// first Complete call wins; later calls lose and change nothing.
//
// Invariants:
//   - done is closed exactly once, after val and err are set.
//   - each registered callback runs exactly once, in registration
//     order, after settlement, never with the future lock held.
type Future[T any] struct {
	mu        sync.Mutex
	settled   bool
	val       T
	err       error
	callbacks []func(T, error)

	done chan struct{}
}

// New returns an unsettled Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already settled with val.
func Resolved[T any](val T) *Future[T] {
	f := New[T]()
	f.Complete(val, nil)
	return f
}

// Failed returns a Future already settled with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	var zero T
	f.Complete(zero, err)
	return f
}

// Complete settles the future with the given result and reports
// whether this call won. Losing calls are no-ops.
func (f *Future[T]) Complete(val T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.val = val
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()
	for _, cb := range callbacks {
		cb(val, err)
	}
	return true
}

// Done returns a channel closed at settlement.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Settled reports whether the future has its result.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Wait blocks until the future settles or ctx is done, whichever
// comes first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, stackerr.Wrap(ctx.Err())
	}
}

// OnComplete registers fn to run with the result. On a settled future
// fn runs synchronously before OnComplete returns.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	val, err := f.val, f.err
	f.mu.Unlock()
	fn(val, err)
}
