package network

import (
	"bytes"
	"strings"
	"testing"

	"github.com/najoast/gproc/core"
)

func testMessage() *core.Message {
	return &core.Message{
		Name: "ping",
		From: core.PID{ID: "a(1)", Host: "127.0.0.1", Port: 5050},
		To:   core.PID{ID: "b(1)", Host: "127.0.0.1", Port: 5051},
		Body: []byte("Hello, gproc!"),
	}
}

func TestBinaryMessageCodec(t *testing.T) {
	codec := NewBinaryMessageCodec()

	t.Run("EncodeDecode", func(t *testing.T) {
		original := testMessage()

		data, err := codec.Encode(original)
		if err != nil {
			t.Fatalf("Failed to encode message: %v", err)
		}

		size, err := codec.FrameSize(data)
		if err != nil {
			t.Fatalf("Failed to read frame size: %v", err)
		}
		if size != len(data) {
			t.Errorf("Expected frame size %d, got %d", len(data), size)
		}

		decoded, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}

		if decoded.Name != original.Name {
			t.Errorf("Name mismatch: expected %s, got %s", original.Name, decoded.Name)
		}
		if decoded.From != original.From {
			t.Errorf("From mismatch: expected %s, got %s", original.From, decoded.From)
		}
		if decoded.To != original.To {
			t.Errorf("To mismatch: expected %s, got %s", original.To, decoded.To)
		}
		if !bytes.Equal(decoded.Body, original.Body) {
			t.Errorf("Body mismatch: expected %s, got %s", original.Body, decoded.Body)
		}
	})

	t.Run("AnonymousSenderEmptyBody", func(t *testing.T) {
		original := &core.Message{Name: "tick", To: core.PID{ID: "clock"}}

		data, err := codec.Encode(original)
		if err != nil {
			t.Fatalf("Failed to encode message: %v", err)
		}

		decoded, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}
		if !decoded.From.IsZero() {
			t.Errorf("Expected anonymous sender, got %s", decoded.From)
		}
		if len(decoded.Body) != 0 {
			t.Errorf("Expected empty body, got %d bytes", len(decoded.Body))
		}
	})

	t.Run("Errors", func(t *testing.T) {
		if _, err := codec.Encode(nil); err == nil {
			t.Error("Expected error encoding nil message")
		}

		long := &core.Message{Name: strings.Repeat("x", MaxFieldSize+1), To: core.PID{ID: "b"}}
		if _, err := codec.Encode(long); err == nil {
			t.Error("Expected error encoding an oversized name")
		}

		if _, err := codec.Decode([]byte{0, 0, 0}); err == nil {
			t.Error("Expected error decoding a short frame")
		}

		data, _ := codec.Encode(testMessage())
		if _, err := codec.Decode(data[:len(data)-1]); err == nil {
			t.Error("Expected error decoding a truncated frame")
		}

		bad := append([]byte(nil), data...)
		bad[4], bad[5] = 0xff, 0xff
		if _, err := codec.Decode(bad); err == nil {
			t.Error("Expected error decoding fields past the frame")
		}
	})
}

func TestDecoder(t *testing.T) {
	codec := NewBinaryMessageCodec()

	var stream []byte
	for _, name := range []string{"one", "two", "three"} {
		msg := testMessage()
		msg.Name = name
		frame, err := codec.Encode(msg)
		if err != nil {
			t.Fatalf("Failed to encode message: %v", err)
		}
		stream = append(stream, frame...)
	}

	decoder := NewDecoder(codec)

	// feed in uneven chunks
	var names []string
	for len(stream) > 0 {
		n := 7
		if n > len(stream) {
			n = len(stream)
		}
		messages, err := decoder.Feed(stream[:n])
		if err != nil {
			t.Fatalf("Failed to feed decoder: %v", err)
		}
		for _, msg := range messages {
			names = append(names, msg.Name)
		}
		stream = stream[n:]
	}

	if strings.Join(names, ",") != "one,two,three" {
		t.Errorf("Expected one,two,three, got %v", names)
	}
	if decoder.Buffered() != 0 {
		t.Errorf("Expected empty buffer, got %d bytes", decoder.Buffered())
	}

	t.Run("Oversized", func(t *testing.T) {
		decoder := NewDecoder(codec)
		if _, err := decoder.Feed([]byte{0xff, 0xff, 0xff, 0xff}); err == nil {
			t.Error("Expected error for an oversized frame")
		}
	})
}
