package core

import (
	"github.com/najoast/gproc/future"
)

// Executor is an anonymous process that serializes arbitrary closures.
// Code that is not itself a process uses it to run callbacks one at a
// time.
type Executor struct {
	rt  *Runtime
	pid PID
}

type executorProcess struct {
	ProcessBase
}

// NewExecutor spawns an executor.
func NewExecutor(rt *Runtime) (*Executor, error) {
	pid, err := rt.Spawn(&executorProcess{}, Owned(), WithID(rt.GenerateID("__executor__")))
	if err != nil {
		return nil, err
	}
	return &Executor{rt: rt, pid: pid}, nil
}

// PID returns the process behind the executor.
func (e *Executor) PID() PID {
	return e.pid
}

// Execute runs fn on the executor and returns a future that is ready once
// fn returned. After Stop the future is Discarded.
func (e *Executor) Execute(fn func()) future.Future[struct{}] {
	return Dispatch(e.rt, e.pid, func(*executorProcess) struct{} {
		fn()
		return struct{}{}
	})
}

// Defer returns a function that runs fn on the executor each time it is
// called.
func (e *Executor) Defer(fn func()) func() {
	return DeferFunc(e.rt, e.pid, fn)
}

// Stop terminates the executor without waiting. Closures queued before
// Stop still run; later ones are dropped.
func (e *Executor) Stop() {
	e.rt.Terminate(e.pid, false)
}
