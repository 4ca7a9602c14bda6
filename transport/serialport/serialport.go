// Package serialport implements the serial transport driver on top of
// go.bug.st/serial. Candidate enumeration lists locally attached USB serial
// adapters, filtered by the FTDI vendor signature the supported amplifiers
// ship with.
package serialport

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/arloliu/go-piezo/internal/pool"
	"github.com/arloliu/go-piezo/internal/util"
	"github.com/arloliu/go-piezo/transport"
)

const (
	// DefaultBaudRate matches the fixed rate of the amplifier serial interface.
	DefaultBaudRate = 115200

	// DefaultVendorID is the FTDI USB vendor ID used to filter enumerated
	// adapters during discovery.
	DefaultVendorID = "0403"

	// pollInterval is the per-iteration read timeout while scanning for the
	// frame delimiter.
	pollInterval = 20 * time.Millisecond
)

// Driver constructs serial transports and enumerates attached adapters.
type Driver struct {
	baudRate int
	vendorID string
}

var _ transport.Driver = (*Driver)(nil)

// Option is a functional option for configuring the serial Driver.
type Option func(*Driver)

// WithBaudRate overrides the default baud rate.
func WithBaudRate(baud int) Option {
	return func(d *Driver) { d.baudRate = baud }
}

// WithVendorID sets the USB vendor ID filter applied during enumeration.
// An empty ID disables filtering and lists every attached port.
func WithVendorID(vid string) Option {
	return func(d *Driver) { d.vendorID = vid }
}

// NewDriver creates a serial Driver with the given options.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		baudRate: DefaultBaudRate,
		vendorID: DefaultVendorID,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Register creates a serial Driver and registers it with the transport
// registry. Call once at process start.
func Register(opts ...Option) {
	transport.Register(NewDriver(opts...))
}

// Kind returns transport.Serial.
func (d *Driver) Kind() transport.Type { return transport.Serial }

// Open constructs an unconnected serial transport for the given port path.
func (d *Driver) Open(identifier string) transport.Transport {
	return &SerialTransport{
		port:     identifier,
		baudRate: d.baudRate,
	}
}

// Enumerate lists attached serial adapters matching the vendor filter, in
// system enumeration order.
func (d *Driver) Enumerate(_ context.Context) ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: failed to enumerate ports: %w", err)
	}

	names := make([]string, 0, len(ports))
	for _, p := range ports {
		if d.vendorID != "" && (!p.IsUSB || !strings.EqualFold(p.VID, d.vendorID)) {
			continue
		}
		names = append(names, p.Name)
	}

	return names, nil
}

// SerialTransport is a point-to-point serial implementation of
// transport.Transport.
type SerialTransport struct {
	port     string
	baudRate int
	conn     serial.Port
	pending  []byte // bytes read past the last delimiter
}

var _ transport.Transport = (*SerialTransport)(nil)

// Connect opens the serial port. adjustCommParams has no effect on the
// serial link; flow-control tuning only applies to network bridges.
func (t *SerialTransport) Connect(_ context.Context, _ bool) error {
	if t.conn != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	conn, err := serial.Open(t.port, mode)
	if err != nil {
		return fmt.Errorf("serialport: failed to open %s: %w", t.port, err)
	}

	t.conn = conn
	t.pending = nil

	return nil
}

// Write flushes unread input, then transmits the frame bytes.
func (t *SerialTransport) Write(ctx context.Context, frame string) error {
	if t.conn == nil {
		return transport.ErrNotConnected
	}

	if err := t.FlushInput(ctx); err != nil {
		return err
	}

	if _, err := t.conn.Write(util.EncodeLatin1(frame)); err != nil {
		return fmt.Errorf("serialport: write failed: %w", err)
	}

	return nil
}

// ReadUntil reads until delim appears in the input stream or timeout elapses.
func (t *SerialTransport) ReadUntil(ctx context.Context, delim []byte, timeout time.Duration) (string, error) {
	if t.conn == nil {
		return "", transport.ErrNotConnected
	}

	if err := t.conn.SetReadTimeout(pollInterval); err != nil {
		return "", fmt.Errorf("serialport: failed to set read timeout: %w", err)
	}

	deadline := pool.GetTimer(timeout)
	defer pool.PutTimer(deadline)

	buf := append([]byte(nil), t.pending...)
	t.pending = nil
	tmp := make([]byte, 64)

	for {
		if idx := bytes.Index(buf, delim); idx >= 0 {
			end := idx + len(delim)
			t.pending = append(t.pending, buf[end:]...)

			return util.DecodeLatin1(buf[:end]), nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("serialport: no delimiter within %v: %w", timeout, transport.ErrTimeout)
		default:
		}

		n, err := t.conn.Read(tmp)
		if err != nil {
			return "", fmt.Errorf("serialport: read failed: %w", err)
		}
		buf = append(buf, tmp[:n]...)
	}
}

// FlushInput discards all pending unread input.
func (t *SerialTransport) FlushInput(_ context.Context) error {
	if t.conn == nil {
		return transport.ErrNotConnected
	}

	t.pending = nil
	if err := t.conn.ResetInputBuffer(); err != nil {
		return fmt.Errorf("serialport: failed to flush input: %w", err)
	}

	return nil
}

// Close releases the serial port. Closing an unopened transport is a no-op.
func (t *SerialTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	conn := t.conn
	t.conn = nil

	if err := conn.Close(); err != nil {
		return fmt.Errorf("serialport: close failed: %w", err)
	}

	return nil
}

// IsConnected reports whether the serial port is open.
func (t *SerialTransport) IsConnected() bool {
	return t.conn != nil
}

// Info returns the transport kind and port path.
func (t *SerialTransport) Info() transport.Info {
	return transport.Info{
		Type:       transport.Serial,
		Identifier: t.port,
	}
}
