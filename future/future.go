// Package future implements single-assignment results shared between one
// producer (Promise) and any number of observers (Future).
//
// A Future starts Pending and makes exactly one transition to Ready, Failed
// or Discarded. Callbacks registered on a Future run exactly once, in
// registration order: immediately on the registering goroutine when the
// Future has already settled, otherwise on the goroutine that settles it.
// Callbacks never run while an internal lock is held.
package future

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle state of a Future.
type State int32

const (
	// StatePending means no value has been assigned yet
	StatePending State = iota

	// StateReady means a value has been assigned
	StateReady

	// StateFailed means the producer reported a failure
	StateFailed

	// StateDiscarded means the result was abandoned
	StateDiscarded
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Forever makes Await block until the future settles.
const Forever time.Duration = -1

var (
	// ErrDiscarded is returned by Get when the future was discarded.
	ErrDiscarded = errors.New("future discarded")

	// ErrPending is returned by Result when the future has not settled.
	ErrPending = errors.New("future pending")
)

// Future is a read handle on a shared result. Copies refer to the same
// result and compare equal.
type Future[T any] struct {
	data *data[T]
}

// Ready returns a future that already holds v.
func Ready[T any](v T) Future[T] {
	d := newData[T]()
	d.settle(StateReady, v, nil)
	return Future[T]{data: d}
}

// Failed returns a future that already failed with err.
func Failed[T any](err error) Future[T] {
	var zero T
	d := newData[T]()
	d.settle(StateFailed, zero, err)
	return Future[T]{data: d}
}

// Discarded returns a future that is already discarded.
func Discarded[T any]() Future[T] {
	var zero T
	d := newData[T]()
	d.settle(StateDiscarded, zero, nil)
	return Future[T]{data: d}
}

// State returns the current state.
func (f Future[T]) State() State {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()
	return f.data.state
}

// IsPending reports whether the future has not settled yet.
func (f Future[T]) IsPending() bool { return f.State() == StatePending }

// IsReady reports whether the future holds a value.
func (f Future[T]) IsReady() bool { return f.State() == StateReady }

// IsFailed reports whether the future failed.
func (f Future[T]) IsFailed() bool { return f.State() == StateFailed }

// IsDiscarded reports whether the future was discarded.
func (f Future[T]) IsDiscarded() bool { return f.State() == StateDiscarded }

// HasDiscard reports whether a consumer requested the future be discarded.
// Producers that support cancellation poll this or register OnDiscard.
func (f Future[T]) HasDiscard() bool {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()
	return f.data.discard
}

// Failure returns the failure error, or nil unless the future failed.
func (f Future[T]) Failure() error {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()
	if f.data.state != StateFailed {
		return nil
	}
	return f.data.err
}

// Result returns the outcome without blocking. A pending future yields
// ErrPending, a discarded one ErrDiscarded.
func (f Future[T]) Result() (T, error) {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()

	switch f.data.state {
	case StateReady:
		return f.data.value, nil
	case StateFailed:
		return f.data.value, f.data.err
	case StateDiscarded:
		return f.data.value, ErrDiscarded
	default:
		var zero T
		return zero, ErrPending
	}
}

// Get blocks the calling goroutine until the future settles and returns
// its outcome. It must not be called from a process handler.
func (f Future[T]) Get() (T, error) {
	<-f.data.done
	return f.Result()
}

// Await blocks the calling goroutine until the future settles or timeout
// elapses, and reports whether it settled. A zero timeout only checks;
// Forever waits indefinitely. It must not be called from a process handler.
func (f Future[T]) Await(timeout time.Duration) bool {
	if timeout < 0 {
		<-f.data.done
		return true
	}

	select {
	case <-f.data.done:
		return true
	default:
	}

	if timeout == 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.data.done:
		return true
	case <-timer.C:
		return false
	}
}

// Wait blocks until the future settles or ctx is done.
func (f Future[T]) Wait(ctx context.Context) error {
	select {
	case <-f.data.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the future settles.
func (f Future[T]) Done() <-chan struct{} {
	return f.data.done
}

// Discard asks the producer to abandon the computation and moves a pending
// future to Discarded. OnDiscard callbacks run before the transition so
// producers can tear down; work already in flight is not interrupted.
// It reports whether this call discarded the future.
func (f Future[T]) Discard() bool {
	d := f.data

	d.mu.Lock()
	if d.state != StatePending || d.discard {
		d.mu.Unlock()
		return false
	}
	d.discard = true
	callbacks := d.onDiscard
	d.onDiscard = nil
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}

	var zero T
	return d.settle(StateDiscarded, zero, nil)
}

// OnDiscard registers fn to run when a consumer requests a discard.
func (f Future[T]) OnDiscard(fn func()) Future[T] {
	d := f.data

	d.mu.Lock()
	if d.discard {
		d.mu.Unlock()
		fn()
		return f
	}
	if d.state == StatePending {
		d.onDiscard = append(d.onDiscard, fn)
	}
	d.mu.Unlock()
	return f
}

// OnReady registers fn to run with the value once the future is ready.
func (f Future[T]) OnReady(fn func(T)) Future[T] {
	f.data.register(func(d *data[T]) {
		if d.state == StateReady {
			fn(d.value)
		}
	})
	return f
}

// OnFailed registers fn to run with the failure once the future fails.
func (f Future[T]) OnFailed(fn func(error)) Future[T] {
	f.data.register(func(d *data[T]) {
		if d.state == StateFailed {
			fn(d.err)
		}
	})
	return f
}

// OnDiscarded registers fn to run once the future is discarded.
func (f Future[T]) OnDiscarded(fn func()) Future[T] {
	f.data.register(func(d *data[T]) {
		if d.state == StateDiscarded {
			fn()
		}
	})
	return f
}

// OnAny registers fn to run once the future settles, whatever the outcome.
func (f Future[T]) OnAny(fn func(Future[T])) Future[T] {
	f.data.register(func(*data[T]) {
		fn(f)
	})
	return f
}

// String returns the state of the future.
func (f Future[T]) String() string {
	return "future(" + f.State().String() + ")"
}
