// Package core implements the process runtime for gproc.
//
// A process is any struct embedding ProcessBase. Processes are spawned on a
// Runtime, which assigns each one a PID and a FIFO mailbox and runs them on
// a fixed pool of workers, one event per turn, so a process never executes
// on two workers at once. Processes interact only through Dispatch, Defer,
// messages and the futures these return; timers, linking and termination
// are delivered as ordinary mailbox events.
package core
