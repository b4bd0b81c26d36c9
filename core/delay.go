package core

import (
	"time"

	"github.com/pkg/errors"

	"github.com/najoast/gproc/future"
)

// Delay dispatches fn to pid once d has elapsed on the runtime clock.
// Cancelling the returned timer is best effort: a timer that already fired
// still dispatches.
func Delay[P Process](rt *Runtime, d time.Duration, pid PID, fn func(P)) Timer {
	return rt.clock.schedule(d, pid, func() {
		DispatchVoid(rt, pid, fn)
	})
}

// After returns a future that becomes ready once d has elapsed on the
// runtime clock. Discarding it cancels the timer.
func After(rt *Runtime, d time.Duration) future.Future[struct{}] {
	promise := future.NewPromise[struct{}]()
	timer := rt.clock.Timer(d, func() {
		promise.Set(struct{}{})
	})
	return promise.Future().OnDiscard(func() {
		rt.clock.Cancel(timer)
	})
}

// Timeout follows f for at most d. When d elapses first the result fails
// with ErrTimeout and f is discarded.
func Timeout[T any](rt *Runtime, f future.Future[T], d time.Duration) future.Future[T] {
	promise := future.NewPromise[T]()

	timer := rt.clock.Timer(d, func() {
		if promise.Fail(errors.Wrapf(ErrTimeout, "future still %s after %s", f.State(), d)) {
			f.Discard()
		}
	})

	f.OnAny(func(f future.Future[T]) {
		rt.clock.Cancel(timer)
		settleFrom(promise, f)
	})

	return promise.Future().OnDiscard(func() {
		rt.clock.Cancel(timer)
		f.Discard()
	})
}

// settleFrom completes promise with the outcome of a settled future.
func settleFrom[T any](promise *future.Promise[T], f future.Future[T]) {
	switch f.State() {
	case future.StateReady:
		v, _ := f.Result()
		promise.Set(v)
	case future.StateFailed:
		promise.Fail(f.Failure())
	case future.StateDiscarded:
		promise.Discard()
	}
}
