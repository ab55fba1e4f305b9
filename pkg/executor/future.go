package executor

import "sync"

// Future is a one-shot, shared future: the Go stand-in for
// std::shared_future<T>. Multiple callers may call Get concurrently; all
// observe the same value once Resolve is called exactly once.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	once     sync.Once
	value    T
	resolved bool
}

// NewFuture creates an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes the future with value. Only the first call has effect;
// subsequent calls are no-ops, matching a promise's set-once contract.
func (f *Future[T]) Resolve(value T) {
	f.once.Do(func() {
		f.mu.Lock()
		f.value = value
		f.resolved = true
		f.mu.Unlock()
		close(f.done)
	})
}

// Get blocks until the future is resolved and returns its value.
func (f *Future[T]) Get() T {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Done returns a channel closed when the future resolves, for use in select
// statements alongside other events.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// TryGet returns the value and true if the future is already resolved,
// without blocking.
func (f *Future[T]) TryGet() (T, bool) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, true
	default:
		var zero T
		return zero, false
	}
}
