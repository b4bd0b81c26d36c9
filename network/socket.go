package network

import (
	"fmt"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/najoast/gproc/future"
)

// Socket shares ownership of a file descriptor. The descriptor is closed
// when the last holder releases it, so a pending Read or Write never sees
// it closed underneath.
type Socket struct {
	fd   int
	refs *atomic.Int32
}

// NewSocket takes ownership of fd with one reference held by the caller.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd, refs: atomic.NewInt32(1)}
}

// NewSocketPair creates a connected pair of non-blocking stream sockets.
func NewSocketPair() (*Socket, *Socket, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create socket pair: %w", err)
	}
	for _, fd := range fds {
		if err := SetNonblock(fd); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, nil, err
		}
	}
	return NewSocket(fds[0]), NewSocket(fds[1]), nil
}

// FD returns the descriptor.
func (s *Socket) FD() int {
	return s.fd
}

// Refs returns the number of holders.
func (s *Socket) Refs() int {
	return int(s.refs.Load())
}

// Retain adds a holder.
func (s *Socket) Retain() *Socket {
	if s.refs.Inc() <= 1 {
		panic(fmt.Sprintf("network: retain of released socket %d", s.fd))
	}
	return s
}

// Release drops a holder and closes the descriptor when it was the last.
func (s *Socket) Release() error {
	refs := s.refs.Dec()
	switch {
	case refs > 0:
		return nil
	case refs == 0:
		if err := unix.Close(s.fd); err != nil {
			return fmt.Errorf("failed to close fd %d: %w", s.fd, err)
		}
		return nil
	default:
		panic(fmt.Sprintf("network: socket %d released too often", s.fd))
	}
}

// Read reads from the socket. The reference it holds is dropped when the
// read stops using the descriptor, not when the future settles.
func (s *Socket) Read(buf []byte) future.Future[int] {
	s.Retain()
	return read(s.fd, buf, s.release)
}

// Write writes all of data, holding a reference the same way as Read.
func (s *Socket) Write(data []byte) future.Future[int] {
	s.Retain()
	return write(s.fd, data, s.release)
}

func (s *Socket) release() {
	s.Release()
}

// Shutdown stops further sends, letting the peer read end of file.
func (s *Socket) Shutdown() error {
	if err := unix.Shutdown(s.fd, unix.SHUT_WR); err != nil {
		return fmt.Errorf("failed to shut down fd %d: %w", s.fd, err)
	}
	return nil
}
