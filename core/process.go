package core

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ProcessBase holds the runtime state of a process. Embed it in a struct
// to make that struct a Process:
//
//	type Counter struct {
//		core.ProcessBase
//		n int
//	}
//
// Fields of the embedding struct need no locking as long as they are only
// touched from the process's own events.
type ProcessBase struct {
	pid PID
	rt  *Runtime

	// self is the embedding value, used for hook lookup
	self Process

	// mu guards events and state
	mu     sync.Mutex
	events []Event
	state  ProcessState

	messageHandlers map[string]MessageHandler
	httpHandlers    map[string]HTTPHandler

	owned       bool
	terminating atomic.Bool
	exited      chan struct{}

	spawnedAt time.Time
	processed atomic.Uint64
}

// Base returns b.
func (b *ProcessBase) Base() *ProcessBase {
	return b
}

// Self returns the PID of the process. It is zero before spawn.
func (b *ProcessBase) Self() PID {
	return b.pid
}

// Runtime returns the runtime the process was spawned on.
func (b *ProcessBase) Runtime() *Runtime {
	return b.rt
}

// Install registers handler for messages named name. Install from the
// process's own events (usually Initialize) or before spawning.
func (b *ProcessBase) Install(name string, handler MessageHandler) {
	if b.messageHandlers == nil {
		b.messageHandlers = make(map[string]MessageHandler)
	}
	b.messageHandlers[name] = handler
}

// Route registers handler for HTTP requests on /<id>/<path>.
func (b *ProcessBase) Route(path string, handler HTTPHandler) {
	if b.httpHandlers == nil {
		b.httpHandlers = make(map[string]HTTPHandler)
	}
	b.httpHandlers[strings.Trim(path, "/")] = handler
}

// Send posts a message from this process to to.
func (b *ProcessBase) Send(to PID, name string, body []byte) {
	b.rt.Post(&Message{Name: name, From: b.pid, To: to, Body: body})
}

// Link asks for an ExitedEvent when to exits.
func (b *ProcessBase) Link(to PID) {
	b.rt.Link(b.pid, to)
}

// Defer returns a function that runs fn as an event of this process.
func (b *ProcessBase) Defer(fn func()) func() {
	return DeferFunc(b.rt, b.pid, fn)
}

// Stats returns current runtime statistics for this process.
func (b *ProcessBase) Stats() ProcessStats {
	b.mu.Lock()
	state, size := b.state, len(b.events)
	b.mu.Unlock()

	return ProcessStats{
		PID:             b.pid,
		State:           state,
		EventsProcessed: b.processed.Load(),
		MailboxSize:     size,
		SpawnedAt:       b.spawnedAt,
		Owned:           b.owned,
	}
}

// enqueue adds e to the mailbox, at the front when front is set, and makes
// an idle process runnable. It fails once the process has terminated.
func (b *ProcessBase) enqueue(e Event, front bool) bool {
	b.mu.Lock()
	if b.state == ProcessStateTerminated {
		b.mu.Unlock()
		return false
	}

	if front {
		b.events = append([]Event{e}, b.events...)
	} else {
		b.events = append(b.events, e)
	}

	schedule := b.state == ProcessStateIdle
	if schedule {
		b.state = ProcessStateRunnable
	}
	b.mu.Unlock()

	if schedule {
		b.rt.runq.push(b)
	}
	return true
}

// dequeue pops the next event and marks the process running.
func (b *ProcessBase) dequeue() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		b.state = ProcessStateIdle
		return nil, false
	}

	e := b.events[0]
	b.events[0] = nil
	b.events = b.events[1:]
	b.state = ProcessStateRunning
	return e, true
}

// yield ends a turn. It reports whether the process must go back on the
// run queue.
func (b *ProcessBase) yield() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) > 0 {
		b.state = ProcessStateRunnable
		return true
	}
	b.state = ProcessStateIdle
	return false
}

// close marks the process terminated and returns the events it will never run.
func (b *ProcessBase) close() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = ProcessStateTerminated
	remaining := b.events
	b.events = nil
	return remaining
}

// release drops references held by a terminated process so it can be
// garbage collected.
func (b *ProcessBase) release() {
	b.messageHandlers = nil
	b.httpHandlers = nil
	b.self = nil
}
