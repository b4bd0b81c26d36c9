package core

import (
	"github.com/najoast/gproc/future"
)

// Defer returns a reusable function that dispatches fn to pid with its
// argument. It keeps a continuation inside the process that registered it:
//
//	f.OnReady(core.DeferVoid(rt, self, func(s *Server, v int) {
//		s.total += v
//	}))
func Defer[P Process, A, R any](rt *Runtime, pid PID, fn func(P, A) R) func(A) future.Future[R] {
	return func(arg A) future.Future[R] {
		return Dispatch(rt, pid, func(p P) R {
			return fn(p, arg)
		})
	}
}

// DeferVoid is Defer for functions without a result.
func DeferVoid[P Process, A any](rt *Runtime, pid PID, fn func(P, A)) func(A) {
	return func(arg A) {
		DispatchVoid(rt, pid, func(p P) {
			fn(p, arg)
		})
	}
}

// DeferFunc returns a function that runs fn as an event of pid, whatever
// the concrete process type.
func DeferFunc(rt *Runtime, pid PID, fn func()) func() {
	return func() {
		rt.deliver(pid, &DispatchEvent{
			run: func(Process) { fn() },
		}, false)
	}
}
