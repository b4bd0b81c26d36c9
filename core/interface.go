package core

// Process is implemented by any struct embedding ProcessBase.
type Process interface {
	// Base returns the embedded runtime state.
	Base() *ProcessBase
}

// Initializer is implemented by processes that need to run code as their
// first event, before anything dispatched to them.
type Initializer interface {
	Initialize()
}

// Finalizer is implemented by processes that need to run code as their
// last event, before the runtime removes them.
type Finalizer interface {
	Finalize()
}

// ExitedHandler is implemented by processes that want to observe the exit
// of processes they linked to.
type ExitedHandler interface {
	Exited(pid PID)
}

// Receiver is implemented by processes that handle messages for which no
// handler was installed.
type Receiver interface {
	Receive(msg *Message)
}

// EventFilter is implemented by processes that refuse some kinds of event.
// Refused events are dropped as dead letters. Terminate events cannot be
// refused.
type EventFilter interface {
	Handles(kind EventKind) bool
}
