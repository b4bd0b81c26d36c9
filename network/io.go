// Package network provides the asynchronous I/O surface of gproc: polling,
// reading and writing non-blocking file descriptors through futures, a
// reference-counted socket, and the framing of runtime messages.
package network

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/najoast/gproc/future"
)

// Events is a set of readiness conditions.
type Events uint8

const (
	// READ means the descriptor can be read without blocking
	READ Events = 1 << iota

	// WRITE means the descriptor can be written without blocking
	WRITE
)

// String returns the string representation of Events
func (e Events) String() string {
	switch e {
	case 0:
		return "none"
	case READ:
		return "read"
	case WRITE:
		return "write"
	case READ | WRITE:
		return "read|write"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// pollInterval bounds how long a discard can go unnoticed.
const pollInterval = 10 * time.Millisecond

// errDiscarded stops a wait whose future was discarded.
var errDiscarded = errors.New("wait discarded")

// Poll returns a future of the subset of events that fd becomes ready for.
// Discarding the future stops polling within a short interval.
func Poll(fd int, events Events) future.Future[Events] {
	promise := future.NewPromise[Events]()
	f := promise.Future()

	go func() {
		ready, err := wait(fd, events, f.IsPending)
		switch {
		case err == errDiscarded:
		case err != nil:
			promise.Fail(err)
		default:
			promise.Set(ready)
		}
	}()

	return f
}

// wait blocks until fd is ready for one of events or pending reports false.
func wait(fd int, events Events, pending func() bool) (Events, error) {
	var requested int16
	if events&READ != 0 {
		requested |= unix.POLLIN
	}
	if events&WRITE != 0 {
		requested |= unix.POLLOUT
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: requested}}
	timeout := int(pollInterval / time.Millisecond)

	for {
		if !pending() {
			return 0, errDiscarded
		}

		n, err := unix.Poll(fds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to poll fd %d: %w", fd, err)
		}
		if n == 0 {
			continue
		}

		revents := fds[0].Revents
		if revents&unix.POLLNVAL != 0 {
			return 0, fmt.Errorf("failed to poll fd %d: %w", fd, unix.EBADF)
		}

		var ready Events
		if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready |= READ
		}
		if revents&(unix.POLLOUT|unix.POLLHUP|unix.POLLERR) != 0 {
			ready |= WRITE
		}
		if ready &= events; ready != 0 {
			return ready, nil
		}
	}
}

// Read reads into buf from a non-blocking fd once data is available. The
// future carries the number of bytes read; 0 means end of file.
func Read(fd int, buf []byte) future.Future[int] {
	return read(fd, buf, nil)
}

// read is Read with a hook that runs once the goroutine stops touching fd:
// before the future settles on completion, or on exit after a discard.
func read(fd int, buf []byte, exit func()) future.Future[int] {
	promise := future.NewPromise[int]()
	f := promise.Future()

	go func() {
		done := once(exit)
		defer done()

		for f.IsPending() {
			n, err := unix.Read(fd, buf)
			switch {
			case err == nil:
				done()
				promise.Set(n)
				return
			case err == unix.EINTR:
			case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
				if _, err := wait(fd, READ, f.IsPending); err != nil {
					done()
					if err != errDiscarded {
						promise.Fail(err)
					}
					return
				}
			default:
				done()
				promise.Fail(fmt.Errorf("failed to read fd %d: %w", fd, err))
				return
			}
		}
	}()

	return f
}

// Write writes all of data to a non-blocking fd, waiting for room as
// needed. The future carries the number of bytes written. Discarding it
// stops before the next write, so a discarded write may be partial.
func Write(fd int, data []byte) future.Future[int] {
	return write(fd, data, nil)
}

// write is Write with the same exit hook as read.
func write(fd int, data []byte, exit func()) future.Future[int] {
	promise := future.NewPromise[int]()
	f := promise.Future()

	go func() {
		done := once(exit)
		defer done()

		written := 0
		for written < len(data) {
			if !f.IsPending() {
				return
			}
			n, err := unix.Write(fd, data[written:])
			switch {
			case err == nil:
				written += n
			case err == unix.EINTR:
			case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
				if _, err := wait(fd, WRITE, f.IsPending); err != nil {
					done()
					if err != errDiscarded {
						promise.Fail(err)
					}
					return
				}
			default:
				done()
				promise.Fail(fmt.Errorf("failed to write fd %d after %d bytes: %w", fd, written, err))
				return
			}
		}
		done()
		promise.Set(written)
	}()

	return f
}

// once wraps fn so that only the first call runs it. fn may be nil.
func once(fn func()) func() {
	return func() {
		if fn != nil {
			fn()
			fn = nil
		}
	}
}

// SetNonblock puts fd into non-blocking mode.
func SetNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("failed to set fd %d non-blocking: %w", fd, err)
	}
	return nil
}
