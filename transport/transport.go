// Package transport defines the byte-level channel abstraction used to talk
// to piezo amplifier devices, a registry of concrete transport drivers, and
// concurrent device discovery across all registered drivers.
//
// A Transport carries short ASCII frames over one physical link (a serial
// adapter or a TCP socket bridge) and frames them with configurable delimiter
// byte sequences. Exactly one request/response exchange is in flight per link
// at any time; serialization is the responsibility of the device session
// layer, not the transport.
package transport

import (
	"context"
	"time"
)

// Framing byte sequences used by the supported device families.
var (
	XON  = []byte{0x11}
	XOFF = []byte{0x13}
	LF   = []byte{0x0A}
	CR   = []byte{0x0D}
	CRLF = []byte{0x0D, 0x0A}
)

// DefaultTimeout is the default timeout for a single ReadUntil call.
const DefaultTimeout = 600 * time.Millisecond

// Transport is a uniform byte-level send/receive channel over one physical link.
//
// Implementations must decode received bytes one-to-one (latin-1 style) so
// that control characters used as framing survive the decode.
type Transport interface {
	// Connect opens the underlying link. When adjustCommParams is true the
	// implementation may perform family-specific flow-control tuning required
	// for correct framing (e.g. XON/XOFF pass-through on XPort bridges).
	Connect(ctx context.Context, adjustCommParams bool) error

	// Write discards any unread input, then transmits the frame bytes.
	// Flushing first prevents a stale response from a previous, aborted
	// exchange being consumed as the reply to this frame.
	Write(ctx context.Context, frame string) error

	// ReadUntil blocks until delim appears in the input stream or timeout
	// elapses. It returns the collected bytes, decoded one-to-one, including
	// the delimiter. On timeout it returns an error wrapping ErrTimeout.
	ReadUntil(ctx context.Context, delim []byte, timeout time.Duration) (string, error)

	// FlushInput discards all pending unread input.
	FlushInput(ctx context.Context) error

	// Close releases the link. Closing an unopened transport is a no-op.
	Close() error

	// IsConnected reports whether the link is currently open.
	IsConnected() bool

	// Info returns metadata about the transport: kind, identifier and
	// optional hardware address.
	Info() Info
}
