package network

import (
	"fmt"
	"sync"

	"github.com/najoast/gproc/core"
	"github.com/najoast/gproc/future"
	"github.com/najoast/gproc/future/async"
	"github.com/najoast/gproc/logging"
)

// readBufferSize is the chunk size of stream reads.
const readBufferSize = 4096

// StreamTransport carries runtime messages over a connected stream
// socket. It implements core.Transport for the sending side; Pump feeds
// the receiving runtime.
type StreamTransport struct {
	socket *Socket
	codec  MessageCodec
	logger logging.Logger

	// writes holds frames in order; a frame is never interleaved with another
	writes async.Mutex
}

// NewStreamTransport sends through socket, taking a reference to it.
func NewStreamTransport(socket *Socket, codec MessageCodec, logger logging.Logger) *StreamTransport {
	if logger == nil {
		logger = logging.Discard
	}
	return &StreamTransport{socket: socket.Retain(), codec: codec, logger: logger}
}

// Send encodes msg and queues it for writing. Write failures are logged.
func (t *StreamTransport) Send(msg *core.Message) error {
	frame, err := t.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message '%s': %w", msg.Name, err)
	}

	t.writes.Lock().OnReady(func(struct{}) {
		t.socket.Write(frame).OnAny(func(f future.Future[int]) {
			if f.IsFailed() {
				t.logger.Warnf("failed to send message '%s' to %s: %v", msg.Name, msg.To, f.Failure())
			}
			t.writes.Unlock()
		})
	})
	return nil
}

// Close drops the transport's reference to the socket.
func (t *StreamTransport) Close() error {
	return t.socket.Release()
}

// Pump reads frames from socket and posts the decoded messages into rt
// until end of file, which makes the returned future ready. A read or
// decode error fails it; discarding it stops reading.
func Pump(rt *core.Runtime, socket *Socket, codec MessageCodec) future.Future[struct{}] {
	promise := future.NewPromise[struct{}]()
	p := &pump{
		rt:      rt,
		socket:  socket.Retain(),
		decoder: NewDecoder(codec),
		buf:     make([]byte, readBufferSize),
		promise: promise,
	}

	promise.Future().OnDiscard(func() {
		p.mu.Lock()
		read := p.read
		p.mu.Unlock()
		read.Discard()
	})
	promise.Future().OnAny(func(future.Future[struct{}]) {
		socket.Release()
	})

	p.next()
	return promise.Future()
}

type pump struct {
	rt      *core.Runtime
	socket  *Socket
	decoder *Decoder
	buf     []byte
	promise *future.Promise[struct{}]

	// mu guards read, the read in flight
	mu   sync.Mutex
	read future.Future[int]
}

func (p *pump) next() {
	if f := p.promise.Future(); !f.IsPending() || f.HasDiscard() {
		return
	}

	read := p.socket.Read(p.buf)
	p.mu.Lock()
	p.read = read
	p.mu.Unlock()

	read.OnAny(p.received)
}

func (p *pump) received(f future.Future[int]) {
	switch f.State() {
	case future.StateFailed:
		p.promise.Fail(f.Failure())
		return
	case future.StateDiscarded:
		p.promise.Discard()
		return
	}

	n, _ := f.Result()
	if n == 0 {
		if p.decoder.Buffered() > 0 {
			p.promise.Fail(fmt.Errorf("stream ended inside a frame (%d bytes buffered)", p.decoder.Buffered()))
			return
		}
		p.promise.Set(struct{}{})
		return
	}

	messages, err := p.decoder.Feed(p.buf[:n])
	for _, msg := range messages {
		p.rt.Post(msg)
	}
	if err != nil {
		p.promise.Fail(err)
		return
	}

	p.next()
}
