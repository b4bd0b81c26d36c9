package core

import (
	"github.com/pkg/errors"

	"github.com/najoast/gproc/future"
)

// Dispatch runs fn against the process named pid, on that process's own
// turn, and returns a future of its result. The future is already
// Discarded if pid is not alive. It fails with ErrTypeMismatch when the
// process is not a P, and with ErrPanic when fn panics.
//
//	count := core.Dispatch(rt, pid, func(c *Counter) int {
//		c.n++
//		return c.n
//	})
func Dispatch[P Process, R any](rt *Runtime, pid PID, fn func(P) R) future.Future[R] {
	promise := future.NewPromise[R]()

	rt.deliver(pid, &DispatchEvent{
		run: func(p Process) {
			target, ok := p.(P)
			if !ok {
				promise.Fail(errors.Wrapf(ErrTypeMismatch, "%s is %T", pid, p))
				return
			}
			defer failOnPanic(promise, pid)
			promise.Set(fn(target))
		},
		abandon: func() { promise.Discard() },
	}, false)

	return promise.Future()
}

// DispatchFuture is Dispatch for functions that themselves return a
// future. The returned future follows the one fn returns; discarding it
// is forwarded there.
func DispatchFuture[P Process, R any](rt *Runtime, pid PID, fn func(P) future.Future[R]) future.Future[R] {
	promise := future.NewPromise[R]()

	rt.deliver(pid, &DispatchEvent{
		run: func(p Process) {
			target, ok := p.(P)
			if !ok {
				promise.Fail(errors.Wrapf(ErrTypeMismatch, "%s is %T", pid, p))
				return
			}
			defer failOnPanic(promise, pid)
			promise.Associate(fn(target))
		},
		abandon: func() { promise.Discard() },
	}, false)

	return promise.Future()
}

// DispatchVoid runs fn against the process named pid. Nothing reports the
// outcome: a dead target or a type mismatch drops the call.
func DispatchVoid[P Process](rt *Runtime, pid PID, fn func(P)) {
	rt.deliver(pid, &DispatchEvent{
		run: func(p Process) {
			target, ok := p.(P)
			if !ok {
				rt.logger.Warnf("dropped dispatch to %s: %v", pid, errors.Wrapf(ErrTypeMismatch, "%s is %T", pid, p))
				return
			}
			fn(target)
		},
	}, false)
}

// failOnPanic fails promise with the recovered value and re-panics so the
// worker terminates the process.
func failOnPanic[R any](promise *future.Promise[R], pid PID) {
	if r := recover(); r != nil {
		promise.Fail(panicError(pid, r))
		panic(r)
	}
}
