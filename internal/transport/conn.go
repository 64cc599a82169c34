// Package transport abstracts the persistent connection to the chat backend.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Read when the peer closed the connection cleanly.
var ErrClosed = errors.New("connection closed")

// Conn abstracts a bidirectional text frame connection.
// This interface isolates transport details from session logic.
type Conn interface {
	// Read reads a single message frame.
	// Returns ErrClosed (possibly wrapped) when the peer closed the connection.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens client connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
