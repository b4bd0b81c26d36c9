package network

import (
	"encoding/binary"
	"fmt"

	"github.com/najoast/gproc/core"
)

// Constants for message framing
const (
	// FrameHeaderSize is the fixed part of a frame: total length, then the
	// lengths of name, from and to
	FrameHeaderSize = 10

	// MaxMessageSize is the maximum allowed frame size
	MaxMessageSize = 64 * 1024 * 1024 // 64MB

	// MaxFieldSize is the maximum length of name, from and to
	MaxFieldSize = 1<<16 - 1
)

// MessageCodec turns runtime messages into frames and back.
type MessageCodec interface {
	// Encode encodes a message to a complete frame
	Encode(msg *core.Message) ([]byte, error)

	// Decode decodes one complete frame
	Decode(frame []byte) (*core.Message, error)

	// FrameSize returns the size of the frame starting at data, or 0 if
	// data is too short to tell
	FrameSize(data []byte) (int, error)
}

// BinaryMessageCodec frames a message as
//
//	uint32 frame length (excluding itself)
//	uint16 name length, uint16 from length, uint16 to length
//	name, from, to, body
//
// with every integer big endian. PIDs travel in their String form.
type BinaryMessageCodec struct{}

// NewBinaryMessageCodec creates a new binary message codec
func NewBinaryMessageCodec() *BinaryMessageCodec {
	return &BinaryMessageCodec{}
}

// Encode encodes a message to binary format
func (c *BinaryMessageCodec) Encode(msg *core.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is nil")
	}

	name, from, to := msg.Name, msg.From.String(), msg.To.String()
	for _, field := range []string{name, from, to} {
		if len(field) > MaxFieldSize {
			return nil, fmt.Errorf("message field too long: %d bytes (max %d)", len(field), MaxFieldSize)
		}
	}

	totalSize := FrameHeaderSize + len(name) + len(from) + len(to) + len(msg.Body)
	if totalSize > MaxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes (max %d)", totalSize, MaxMessageSize)
	}

	buf := make([]byte, totalSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(totalSize-4))
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(name)))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(from)))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(to)))

	offset := FrameHeaderSize
	offset += copy(buf[offset:], name)
	offset += copy(buf[offset:], from)
	offset += copy(buf[offset:], to)
	copy(buf[offset:], msg.Body)

	return buf, nil
}

// FrameSize reads the frame length prefix
func (c *BinaryMessageCodec) FrameSize(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, nil
	}
	size := int(binary.BigEndian.Uint32(data[0:4])) + 4
	if size > MaxMessageSize {
		return 0, fmt.Errorf("message too large: %d bytes (max %d)", size, MaxMessageSize)
	}
	if size < FrameHeaderSize {
		return 0, fmt.Errorf("frame too short: %d bytes", size)
	}
	return size, nil
}

// Decode decodes binary data to a message
func (c *BinaryMessageCodec) Decode(frame []byte) (*core.Message, error) {
	if len(frame) < FrameHeaderSize {
		return nil, fmt.Errorf("data too short for frame header: %d bytes", len(frame))
	}

	size, err := c.FrameSize(frame)
	if err != nil {
		return nil, err
	}
	if len(frame) < size {
		return nil, fmt.Errorf("data too short for frame: expected %d, got %d", size, len(frame))
	}

	nameLen := int(binary.BigEndian.Uint16(frame[4:6]))
	fromLen := int(binary.BigEndian.Uint16(frame[6:8]))
	toLen := int(binary.BigEndian.Uint16(frame[8:10]))
	if FrameHeaderSize+nameLen+fromLen+toLen > size {
		return nil, fmt.Errorf("frame fields exceed frame size %d", size)
	}

	offset := FrameHeaderSize
	name := string(frame[offset : offset+nameLen])
	offset += nameLen

	from, err := parseOptionalPID(string(frame[offset : offset+fromLen]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode sender: %w", err)
	}
	offset += fromLen

	to, err := core.ParsePID(string(frame[offset : offset+toLen]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode receiver: %w", err)
	}
	offset += toLen

	msg := &core.Message{Name: name, From: from, To: to}
	if offset < size {
		msg.Body = make([]byte, size-offset)
		copy(msg.Body, frame[offset:size])
	}
	return msg, nil
}

// parseOptionalPID allows anonymous senders.
func parseOptionalPID(s string) (core.PID, error) {
	if s == "" {
		return core.PID{}, nil
	}
	return core.ParsePID(s)
}

// Decoder splits a byte stream into messages.
type Decoder struct {
	codec  MessageCodec
	buffer []byte
}

// NewDecoder creates a decoder using codec.
func NewDecoder(codec MessageCodec) *Decoder {
	return &Decoder{codec: codec}
}

// Feed appends data and returns every message it completed. A partial
// frame is kept for the next call.
func (d *Decoder) Feed(data []byte) ([]*core.Message, error) {
	d.buffer = append(d.buffer, data...)

	var messages []*core.Message
	for {
		size, err := d.codec.FrameSize(d.buffer)
		if err != nil {
			d.buffer = nil
			return messages, err
		}
		if size == 0 || len(d.buffer) < size {
			break
		}

		msg, err := d.codec.Decode(d.buffer[:size])
		if err != nil {
			d.buffer = nil
			return messages, err
		}
		messages = append(messages, msg)
		d.buffer = d.buffer[size:]
	}

	if len(d.buffer) == 0 {
		d.buffer = nil
	}
	return messages, nil
}

// Buffered returns the number of bytes of an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buffer)
}
