package core

import (
	"github.com/najoast/gproc/future"
)

// EventKind identifies the variant of an Event.
type EventKind uint8

const (
	// MessageEventKind carries a named Message
	MessageEventKind EventKind = iota

	// DispatchEventKind carries a closure to run inside the process
	DispatchEventKind

	// HTTPEventKind carries an HTTP request for one of the process routes
	HTTPEventKind

	// ExitedEventKind reports that a linked process exited
	ExitedEventKind

	// TerminateEventKind asks the process to exit
	TerminateEventKind
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case MessageEventKind:
		return "message"
	case DispatchEventKind:
		return "dispatch"
	case HTTPEventKind:
		return "http"
	case ExitedEventKind:
		return "exited"
	case TerminateEventKind:
		return "terminate"
	default:
		return "unknown"
	}
}

// Event is one unit of work in a mailbox. The set of variants is closed:
// *MessageEvent, *DispatchEvent, *HTTPEvent, *ExitedEvent, *TerminateEvent.
type Event interface {
	Kind() EventKind
	event()
}

// MessageEvent delivers a Message.
type MessageEvent struct {
	Message *Message
}

// DispatchEvent runs a closure against the process.
type DispatchEvent struct {
	run func(Process)

	// abandon settles any waiting future when the event is never run
	abandon func()
}

// HTTPEvent delivers a request; the route handler's future settles Response.
type HTTPEvent struct {
	Request  *Request
	Response *future.Promise[*Response]
}

// ExitedEvent reports that a linked process exited.
type ExitedEvent struct {
	PID PID
}

// TerminateEvent asks the process to finalize and exit.
type TerminateEvent struct {
	// Inject is set when the event jumped the queue
	Inject bool
}

func (*MessageEvent) Kind() EventKind   { return MessageEventKind }
func (*DispatchEvent) Kind() EventKind  { return DispatchEventKind }
func (*HTTPEvent) Kind() EventKind      { return HTTPEventKind }
func (*ExitedEvent) Kind() EventKind    { return ExitedEventKind }
func (*TerminateEvent) Kind() EventKind { return TerminateEventKind }

func (*MessageEvent) event()   {}
func (*DispatchEvent) event()  {}
func (*HTTPEvent) event()      {}
func (*ExitedEvent) event()    {}
func (*TerminateEvent) event() {}

// abandonEvent settles whatever is waiting on an event that will never run.
func abandonEvent(e Event) {
	switch ev := e.(type) {
	case *DispatchEvent:
		if ev.abandon != nil {
			ev.abandon()
		}
	case *HTTPEvent:
		ev.Response.Discard()
	}
}
