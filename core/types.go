package core

import (
	"time"
)

// ProcessState is the scheduling state of a process.
type ProcessState uint8

const (
	// ProcessStateIdle means the mailbox is empty
	ProcessStateIdle ProcessState = iota

	// ProcessStateRunnable means the process waits in the run queue
	ProcessStateRunnable

	// ProcessStateRunning means a worker is executing one of its events
	ProcessStateRunning

	// ProcessStateTerminated means the process has exited
	ProcessStateTerminated
)

// String returns the string representation of ProcessState.
func (s ProcessState) String() string {
	switch s {
	case ProcessStateIdle:
		return "idle"
	case ProcessStateRunnable:
		return "runnable"
	case ProcessStateRunning:
		return "running"
	case ProcessStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ProcessStats contains runtime statistics for a process.
type ProcessStats struct {
	// PID of the process
	PID PID

	// Current state
	State ProcessState

	// Total events processed
	EventsProcessed uint64

	// Events currently in the mailbox
	MailboxSize int

	// Time when the process was spawned
	SpawnedAt time.Time

	// Whether the runtime reclaims the process after it exits
	Owned bool
}

// RuntimeStats summarises a Runtime.
type RuntimeStats struct {
	// ID is the unique id of the runtime instance
	ID string

	// Address the runtime's PIDs carry
	Host string
	Port uint16

	// Number of workers
	Workers int

	// Live processes
	Processes int

	// Processes waiting in the run queue
	Runnable int

	// Processes being executed right now
	Running int

	// Pending timers
	Timers int

	// Events that could not be delivered
	DeadLetters uint64

	// Whether the clock is paused
	Paused bool
}

// Options contains configuration options for creating a Runtime.
type Options struct {
	// Workers is the number of worker goroutines executing processes
	Workers int

	// Host and Port are stamped on every PID spawned by the runtime
	Host string
	Port uint16
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Workers: 8,
		Host:    "127.0.0.1",
		Port:    0,
	}
}
