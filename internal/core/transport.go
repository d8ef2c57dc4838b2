package core

import "context"

// Handle is the outbound half of a connection. Implementations must tolerate
// concurrent Send calls: broadcasts from other sessions write to the same handle.
type Handle interface {
	Send(ctx context.Context, frame []byte) error
}

// Conn is the duplex channel the transport hands to the Dispatcher.
// Receive blocks for the next text frame and returns io.EOF once the peer closes.
type Conn interface {
	Handle
	Receive(ctx context.Context) ([]byte, error)
}
