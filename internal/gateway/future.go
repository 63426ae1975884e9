package gateway

import (
	"context"
	"sync"
)

// Future is a single-assignment result. The first resolve wins; later ones
// are ignored.
type Future[T any] struct {
	done  chan struct{}
	mu    sync.Mutex
	set   bool
	value T
	err   error
	hooks []func(T, error)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func failedFuture[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.resolve(zero, err)
	return f
}

// Settled returns a future already resolved with value and err.
func Settled[T any](value T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(value, err)
	return f
}

// resolve reports whether this call settled the future.
func (f *Future[T]) resolve(value T, err error) bool {
	f.mu.Lock()
	if f.set {
		f.mu.Unlock()
		return false
	}
	f.set = true
	f.value = value
	f.err = err
	hooks := f.hooks
	f.hooks = nil
	close(f.done)
	f.mu.Unlock()

	for _, h := range hooks {
		h(value, err)
	}
	return true
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether a result is available without blocking.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx ends. A ctx error does not
// resolve the future.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnDone registers fn to run once with the result. If the future is already
// resolved fn runs immediately on the calling goroutine.
func (f *Future[T]) OnDone(fn func(T, error)) {
	f.mu.Lock()
	if f.set {
		value, err := f.value, f.err
		f.mu.Unlock()
		fn(value, err)
		return
	}
	f.hooks = append(f.hooks, fn)
	f.mu.Unlock()
}
