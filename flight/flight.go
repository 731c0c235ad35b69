// Package flight tracks at most one pending operation per key and shares its
// outcome with every caller that arrives while it runs.
package flight

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
)

// Future is the shared outcome of one in-flight operation.
type Future[T any] struct {
	key         string
	done        chan struct{}
	once        sync.Once
	val         T
	err         error
	subscribers atomic.Int32
}

func newFuture[T any](key string) *Future[T] {
	f := &Future[T]{key: key, done: make(chan struct{})}
	f.subscribers.Store(1)
	return f
}

// Key returns the key the future was registered under.
func (f *Future[T]) Key() string { return f.key }

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Subscribers returns how many callers registered for this outcome.
func (f *Future[T]) Subscribers() int { return int(f.subscribers.Load()) }

// Wait blocks until the future settles or ctx is done. A cancelled wait does
// not affect the operation or the other subscribers.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// settle records the outcome. Only the first call has any effect.
func (f *Future[T]) settle(val T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.val, f.err = val, err
		close(f.done)
		settled = true
	})
	return settled
}

// Registry maps keys to their pending Future. The zero value is not usable,
// use NewRegistry.
type Registry[T any] struct {
	mu    sync.Mutex
	slots map[string]*Future[T]
}

// NewRegistry returns an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{slots: make(map[string]*Future[T])}
}

// Register returns the pending future for key. When isNew is true the caller
// owns the operation and must call Settle exactly once; otherwise the caller
// only waits.
func (r *Registry[T]) Register(key string) (f *Future[T], isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.slots[key]; ok {
		f.subscribers.Add(1)
		return f, false
	}
	f = newFuture[T](key)
	r.slots[key] = f
	return f, true
}

// Lookup returns the pending future for key, if any.
func (r *Registry[T]) Lookup(key string) (*Future[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.slots[key]
	return f, ok
}

// Settle resolves f and clears its slot, unless the slot was already handed
// to a newer operation by Forget.
func (r *Registry[T]) Settle(f *Future[T], val T, err error) {
	r.mu.Lock()
	if r.slots[f.key] == f {
		delete(r.slots, f.key)
	}
	r.mu.Unlock()
	f.settle(val, err)
}

// Forget detaches the pending operation for key so the next Register starts a
// new one. Subscribers of the detached future still receive its outcome.
func (r *Registry[T]) Forget(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[key]
	delete(r.slots, key)
	return ok
}

// ForgetFunc detaches every pending operation whose key matches pred.
func (r *Registry[T]) ForgetFunc(pred func(key string) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for k := range r.slots {
		if pred(k) {
			delete(r.slots, k)
			n++
		}
	}
	return n
}

// Len returns the number of pending operations.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Keys returns the pending keys in sorted order.
func (r *Registry[T]) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.slots))
	for k := range r.slots {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// PanicError is returned to every subscriber when the operation panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("flight: operation panicked: %v", p.Value)
}

// Do runs fn once per key and returns its outcome to every concurrent caller.
// fn runs detached from ctx so one caller giving up does not fail the others;
// shared reports whether the caller joined an existing operation.
func (r *Registry[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (val T, shared bool, err error) {
	f, isNew := r.Register(key)
	if isNew {
		go r.run(context.WithoutCancel(ctx), f, fn)
	}
	val, err = f.Wait(ctx)
	return val, !isNew, err
}

func (r *Registry[T]) run(ctx context.Context, f *Future[T], fn func(ctx context.Context) (T, error)) {
	var (
		val T
		err error
	)
	defer func() {
		if p := recover(); p != nil {
			var zero T
			r.Settle(f, zero, &PanicError{Value: p, Stack: debug.Stack()})
			return
		}
		r.Settle(f, val, err)
	}()
	val, err = fn(ctx)
}
