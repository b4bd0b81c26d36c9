// Package async provides coordination primitives whose waiting is expressed
// as futures instead of blocked goroutines, so they can be used from process
// handlers.
package async

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/najoast/gproc/future"
)

// Mutex serialises critical sections that span asynchronous steps.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []*future.Promise[struct{}]
}

// Lock returns a future that becomes ready once the caller holds the lock.
// Discarding a waiting future gives up the place in line.
func (m *Mutex) Lock() future.Future[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.locked {
		m.locked = true
		return future.Ready(struct{}{})
	}

	promise := future.NewPromise[struct{}]()
	m.waiters = append(m.waiters, promise)
	return promise.Future()
}

// Unlock hands the lock to the next waiter that has not discarded, or
// releases it.
func (m *Mutex) Unlock() {
	var next *future.Promise[struct{}]

	m.mu.Lock()
	for len(m.waiters) > 0 {
		candidate := m.waiters[0]
		m.waiters = m.waiters[1:]
		if !candidate.Future().IsDiscarded() {
			next = candidate
			break
		}
	}
	if next == nil {
		m.locked = false
	}
	m.mu.Unlock()

	// Set outside the lock, callbacks may call Lock again.
	if next != nil && !next.Set(struct{}{}) {
		m.Unlock()
	}
}

// Queue is an unbounded FIFO whose Get returns a future.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	waiters []*future.Promise[T]
}

// Put hands item to the oldest waiting Get, or buffers it.
func (q *Queue[T]) Put(item T) {
	for {
		q.mu.Lock()
		if len(q.waiters) == 0 {
			q.items = append(q.items, item)
			q.mu.Unlock()
			return
		}
		waiter := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.mu.Unlock()

		// A discarded waiter refuses the item, try the next one.
		if waiter.Set(item) {
			return
		}
	}
}

// Get returns a future for the next item.
func (q *Queue[T]) Get() future.Future[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		return future.Ready(item)
	}

	promise := future.NewPromise[T]()
	q.waiters = append(q.waiters, promise)
	return promise.Future()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Once lets exactly one caller perform an initialisation that others
// wait on through Future.
type Once struct {
	mu      sync.Mutex
	started bool
	promise *future.Promise[struct{}]
}

// Begin reports whether the caller is the first and must perform the work
// and then call Done.
func (o *Once) Begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.init()
	if o.started {
		return false
	}
	o.started = true
	return true
}

// Done marks the work complete.
func (o *Once) Done() {
	o.mu.Lock()
	o.init()
	promise := o.promise
	o.mu.Unlock()

	promise.Set(struct{}{})
}

// Future becomes ready when Done is called.
func (o *Once) Future() future.Future[struct{}] {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.init()
	return o.promise.Future()
}

func (o *Once) init() {
	if o.promise == nil {
		o.promise = future.NewPromise[struct{}]()
	}
}

// CountDownLatch becomes ready after Decrement has been called count times.
type CountDownLatch struct {
	count   atomic.Int64
	promise *future.Promise[struct{}]
}

// NewCountDownLatch creates a latch that opens after count decrements.
func NewCountDownLatch(count int) *CountDownLatch {
	l := &CountDownLatch{promise: future.NewPromise[struct{}]()}
	l.count.Store(int64(count))
	if count <= 0 {
		l.promise.Set(struct{}{})
	}
	return l
}

// Decrement counts down once. Calls past zero are ignored.
func (l *CountDownLatch) Decrement() {
	for {
		current := l.count.Load()
		if current <= 0 {
			return
		}
		if l.count.CompareAndSwap(current, current-1) {
			if current == 1 {
				l.promise.Set(struct{}{})
			}
			return
		}
	}
}

// Triggered returns a future that is ready once the count reaches zero.
func (l *CountDownLatch) Triggered() future.Future[struct{}] {
	return l.promise.Future()
}
