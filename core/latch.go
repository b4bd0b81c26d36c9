package core

import (
	"time"

	"go.uber.org/atomic"

	"github.com/najoast/gproc/future"
)

// Latch is a one-shot gate backed by a process: triggering it terminates
// the process, and waiters learn about it through the process exit.
type Latch struct {
	rt        *Runtime
	pid       PID
	triggered atomic.Bool
	promise   *future.Promise[struct{}]
}

type latchProcess struct {
	ProcessBase
	promise *future.Promise[struct{}]
}

func (p *latchProcess) Finalize() {
	p.promise.Set(struct{}{})
}

// NewLatch creates an untriggered latch.
func NewLatch(rt *Runtime) (*Latch, error) {
	promise := future.NewPromise[struct{}]()
	pid, err := rt.Spawn(&latchProcess{promise: promise}, Owned(), WithID(rt.GenerateID("__latch__")))
	if err != nil {
		return nil, err
	}
	return &Latch{rt: rt, pid: pid, promise: promise}, nil
}

// Trigger opens the latch. It reports whether this call opened it.
func (l *Latch) Trigger() bool {
	if !l.triggered.CompareAndSwap(false, true) {
		return false
	}
	l.rt.Terminate(l.pid, false)
	return true
}

// Await blocks until the latch is triggered or timeout elapses and reports
// whether it was triggered. A negative timeout waits indefinitely.
func (l *Latch) Await(timeout time.Duration) bool {
	return l.rt.Wait(l.pid, timeout)
}

// Future returns a future that becomes ready once the latch is triggered.
func (l *Latch) Future() future.Future[struct{}] {
	return l.promise.Future()
}
