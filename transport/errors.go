package transport

import "errors"

var (
	// ErrTimeout indicates that a ReadUntil call did not observe the
	// delimiter within its timeout.
	ErrTimeout = errors.New("transport: read timeout")

	// ErrNotConnected indicates an operation on a transport whose link is
	// not open.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrUnsupportedTransport indicates a request for a transport kind that
	// was never registered.
	ErrUnsupportedTransport = errors.New("transport: unsupported transport type")
)
