package core

import (
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
)

// runQueue holds runnable processes in FIFO order. A process is on the
// queue at most once: only the Idle to Runnable transition pushes it.
type runQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*ProcessBase
	running int
	closed  bool
}

func newRunQueue() *runQueue {
	q := &runQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *runQueue) push(b *ProcessBase) {
	q.mu.Lock()
	q.queue = append(q.queue, b)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a process is runnable or the queue is closed. The
// running count is raised in the same critical section so that Settle
// never observes a process that is neither queued nor running.
func (q *runQueue) pop() (*ProcessBase, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}

	b := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	q.running++
	return b, true
}

// done lowers the running count after a turn.
func (q *runQueue) done() {
	q.mu.Lock()
	q.running--
	q.mu.Unlock()
}

func (q *runQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *runQueue) counts() (runnable, running int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue), q.running
}

// worker executes one event per turn until the run queue closes.
func (rt *Runtime) worker() error {
	for {
		b, ok := rt.runq.pop()
		if !ok {
			return nil
		}
		rt.resume(b)
		rt.runq.done()
	}
}

// resume runs a single event of b and puts b back on the queue if more
// events arrived in the meantime.
func (rt *Runtime) resume(b *ProcessBase) {
	e, ok := b.dequeue()
	if !ok {
		return
	}

	if rt.serve(b, e) {
		rt.cleanup(b)
		return
	}

	if b.yield() {
		rt.runq.push(b)
	}
}

// serve executes e on b. It reports whether b terminated.
func (rt *Runtime) serve(b *ProcessBase, e Event) (terminated bool) {
	b.processed.Inc()

	defer func() {
		if r := recover(); r != nil {
			rt.logger.Errorf("process %s panicked handling %s event: %v\n%s", b.pid, e.Kind(), r, debug.Stack())
			rt.kill(b)
		}
	}()

	if _, ok := e.(*TerminateEvent); ok {
		if finalizer, ok := b.self.(Finalizer); ok {
			rt.finalize(b, finalizer)
		}
		return true
	}

	if filter, ok := b.self.(EventFilter); ok && !filter.Handles(e.Kind()) {
		rt.deadLetter(b.pid, e, "event refused")
		return false
	}

	switch ev := e.(type) {
	case *DispatchEvent:
		ev.run(b.self)

	case *MessageEvent:
		if handler, ok := b.messageHandlers[ev.Message.Name]; ok {
			handler(ev.Message)
		} else if receiver, ok := b.self.(Receiver); ok {
			receiver.Receive(ev.Message)
		} else {
			rt.logger.Debugf("process %s dropped message '%s' from %s: no handler", b.pid, ev.Message.Name, ev.Message.From)
		}

	case *HTTPEvent:
		rt.serveHTTPEvent(b, ev)

	case *ExitedEvent:
		if handler, ok := b.self.(ExitedHandler); ok {
			handler.Exited(ev.PID)
		}
	}

	return false
}

// finalize runs the Finalize hook; a panic there must not keep the process
// from exiting.
func (rt *Runtime) finalize(b *ProcessBase, finalizer Finalizer) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Errorf("process %s panicked in finalize: %v", b.pid, r)
		}
	}()
	finalizer.Finalize()
}

// panicError converts a recovered value into an error.
func panicError(pid PID, r interface{}) error {
	return errors.Wrapf(ErrPanic, "%s: %v", pid, r)
}
