package core

// Message is a named, opaque payload sent between processes. How it is
// framed on a wire is up to the Transport.
type Message struct {
	// Name selects the handler installed on the receiver
	Name string

	// From is the sender, To the receiver
	From PID
	To   PID

	// Body is not interpreted by the runtime
	Body []byte
}

// MessageHandler handles a message installed under a name.
type MessageHandler func(msg *Message)

// Transport carries messages addressed to processes of other runtimes.
type Transport interface {
	Send(msg *Message) error
}
