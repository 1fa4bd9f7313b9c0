package transport

import "time"

// Transport defines the interface for one accepted (or dialed) stream connection.
// Implementations wrap TCP and Unix domain sockets.
type Transport interface {
	// Read receives data from the peer.
	// Returns the number of bytes read or an error.
	Read(buf []byte) (int, error)

	// Write sends data to the peer.
	// Returns the number of bytes written or an error.
	Write(buf []byte) (int, error)

	// SetReadDeadline bounds all future Read calls.
	// A zero value clears the deadline.
	SetReadDeadline(t time.Time) error

	// CloseWrite shuts down the sending side, leaving reads open.
	CloseWrite() error

	// Close closes the connection.
	Close() error

	// RemoteAddr describes the peer.
	RemoteAddr() string
}

// Listener hands out one Transport per accepted connection.
type Listener interface {
	// Accept waits for the next connection.
	Accept() (Transport, error)

	// Close stops listening. Blocked Accept calls return an error.
	Close() error

	// Addr is the bound address (host:port or socket path).
	Addr() string
}

// Options configures transports produced by listeners and Dial.
type Options struct {
	// WriteTimeout is refreshed before every Write. Zero disables it.
	WriteTimeout time.Duration
}
