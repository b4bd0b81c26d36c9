package future

import (
	"sync"

	"go.uber.org/atomic"
)

// data is the shared slot behind every copy of a Future and its Promise.
type data[T any] struct {
	mu sync.Mutex

	state State
	value T
	err   error

	// discard is set once a consumer asked for the result to be dropped
	discard bool

	callbacks []func(*data[T])
	onDiscard []func()

	done chan struct{}
}

func newData[T any]() *data[T] {
	return &data[T]{done: make(chan struct{})}
}

// settle performs the single transition out of Pending. Losers of a race
// return false and leave the slot untouched.
func (d *data[T]) settle(state State, v T, err error) bool {
	d.mu.Lock()
	if d.state != StatePending {
		d.mu.Unlock()
		return false
	}
	d.state = state
	d.value = v
	d.err = err
	callbacks := d.callbacks
	d.callbacks = nil
	d.onDiscard = nil
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb(d)
	}

	// Blocked readers wake after the callbacks queued at the transition ran.
	close(d.done)
	return true
}

// register queues cb, or runs it right away if the slot already settled.
func (d *data[T]) register(cb func(*data[T])) {
	d.mu.Lock()
	if d.state == StatePending {
		d.callbacks = append(d.callbacks, cb)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	cb(d)
}

// Promise is the single-writer side of a Future. The first of Set, Fail,
// Discard or Associate wins; later calls are ignored and return false.
type Promise[T any] struct {
	future     Future[T]
	associated atomic.Bool
}

// NewPromise creates a promise with a pending future.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{future: Future[T]{data: newData[T]()}}
}

// Future returns the read handle for this promise.
func (p *Promise[T]) Future() Future[T] {
	return p.future
}

// Set assigns v and moves the future to Ready.
func (p *Promise[T]) Set(v T) bool {
	if p.associated.Load() {
		return false
	}
	return p.future.data.settle(StateReady, v, nil)
}

// Fail moves the future to Failed carrying err.
func (p *Promise[T]) Fail(err error) bool {
	if p.associated.Load() {
		return false
	}
	var zero T
	return p.future.data.settle(StateFailed, zero, err)
}

// Discard moves the future to Discarded.
func (p *Promise[T]) Discard() bool {
	if p.associated.Load() {
		return false
	}
	var zero T
	return p.future.data.settle(StateDiscarded, zero, nil)
}

// Associate makes this promise complete exactly as other completes. A
// discard requested on this promise's future is forwarded to other.
// Afterwards Set, Fail and Discard are ignored.
func (p *Promise[T]) Associate(other Future[T]) bool {
	if !p.future.IsPending() || !p.associated.CompareAndSwap(false, true) {
		return false
	}

	p.future.OnDiscard(func() {
		other.Discard()
	})

	other.OnAny(func(f Future[T]) {
		var zero T
		switch f.State() {
		case StateReady:
			v, _ := f.Result()
			p.future.data.settle(StateReady, v, nil)
		case StateFailed:
			p.future.data.settle(StateFailed, zero, f.Failure())
		case StateDiscarded:
			p.future.data.settle(StateDiscarded, zero, nil)
		}
	})
	return true
}
