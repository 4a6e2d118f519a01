package chathub

// Client is the interface for any type of connection.
// It abstracts the underlying transport so the hub and the router can manage
// every client uniformly.
type Client interface {
	// GetConnectionID returns the server-assigned identifier of the connection.
	GetConnectionID() string

	// GetSendChannel returns the channel the router enqueues encoded frames
	// on. It is a send-only channel.
	GetSendChannel() chan<- []byte

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's outbound channel. Only the router calls it.
	Close()
}
