// Package telnet implements the network transport driver for amplifiers
// attached through Lantronix XPort serial-to-ethernet bridges.
//
// Frames travel over a plain TCP connection to the bridge's data port. The
// bridge itself is managed out-of-band over the Lantronix UDP management
// protocol, which this package uses for two things: enumerating bridges on
// the local network (discovery broadcast) and tuning the bridge's serial
// flow-control mode to XON/XOFF pass-to-host, which is required for the
// XON-delimited framing some device families use.
package telnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-piezo/internal/pool"
	"github.com/arloliu/go-piezo/internal/util"
	"github.com/arloliu/go-piezo/transport"
)

const (
	// DefaultPort is the XPort data port carrying device frames.
	DefaultPort = 23

	// DefaultConnectTimeout is the TCP dial timeout.
	DefaultConnectTimeout = 3 * time.Second

	// pollInterval is the per-iteration read deadline while scanning for the
	// frame delimiter.
	pollInterval = 20 * time.Millisecond
)

// Lantronix XPort management protocol (UDP port 0x77FE).
const (
	mgmtPort          = 30718
	mgmtTimeout       = time.Second
	opQuery           = 0xF6 // discovery query (broadcast)
	opQueryReply      = 0xF7 // discovery reply, MAC at bytes 24..30
	opReadSetup       = 0xF8 // read setup record
	opReadSetupReply  = 0xF9
	opWriteSetup      = 0xFA // write setup record
	opWriteSetupReply = 0xFB

	setupRecordLen = 120
	// flowControlOffset is the serial channel 1 flow-control byte within the
	// setup record.
	flowControlOffset = 12
	// flowXonXoffPassToHost makes the bridge forward XON/XOFF bytes to the
	// host instead of consuming them, so they remain usable as frame
	// delimiters.
	flowXonXoffPassToHost = 0x05
)

// Driver constructs telnet transports and enumerates XPort bridges.
type Driver struct {
	port           int
	hosts          []string
	connectTimeout time.Duration

	// macs caches hardware addresses learned during enumeration, keyed by
	// host, so transports opened afterwards can report them in Info.
	macs *xsync.MapOf[string, string]
}

var _ transport.Driver = (*Driver)(nil)

// Option is a functional option for configuring the telnet Driver.
type Option func(*Driver)

// WithPort overrides the default data port.
func WithPort(port int) Option {
	return func(d *Driver) { d.port = port }
}

// WithHosts configures a fixed candidate host list for discovery instead of
// the UDP broadcast scan.
func WithHosts(hosts ...string) Option {
	return func(d *Driver) { d.hosts = hosts }
}

// WithConnectTimeout overrides the TCP dial timeout.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.connectTimeout = timeout }
}

// NewDriver creates a telnet Driver with the given options.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		port:           DefaultPort,
		connectTimeout: DefaultConnectTimeout,
		macs:           xsync.NewMapOf[string, string](),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Register creates a telnet Driver and registers it with the transport
// registry. Call once at process start.
func Register(opts ...Option) {
	transport.Register(NewDriver(opts...))
}

// Kind returns transport.Telnet.
func (d *Driver) Kind() transport.Type { return transport.Telnet }

// Open constructs an unconnected telnet transport. The identifier is a host
// or "host:port"; a bare host gets the driver's data port appended.
func (d *Driver) Open(identifier string) transport.Transport {
	host := identifier
	addr := identifier
	if h, _, err := net.SplitHostPort(identifier); err == nil {
		host = h
	} else {
		addr = net.JoinHostPort(identifier, strconv.Itoa(d.port))
	}

	mac, _ := d.macs.Load(host)

	return &TelnetTransport{
		addr:           addr,
		mac:            mac,
		connectTimeout: d.connectTimeout,
	}
}

// Enumerate lists candidate bridge addresses. With a configured host list it
// returns that list verbatim; otherwise it broadcasts a Lantronix discovery
// query and collects the bridges that reply within the scan window.
func (d *Driver) Enumerate(ctx context.Context) ([]string, error) {
	if len(d.hosts) > 0 {
		return d.hosts, nil
	}

	return d.broadcastScan(ctx)
}

func (d *Driver) broadcastScan(ctx context.Context) ([]string, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("telnet: failed to open discovery socket: %w", err)
	}
	defer conn.Close()

	bcast := &net.UDPAddr{IP: net.IPv4bcast, Port: mgmtPort}
	if _, err := conn.WriteTo([]byte{0, 0, 0, opQuery}, bcast); err != nil {
		return nil, fmt.Errorf("telnet: discovery broadcast failed: %w", err)
	}

	deadline := time.Now().Add(mgmtTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	var hosts []string
	buf := make([]byte, 256)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return hosts, nil
		}

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			// Scan window elapsed; whatever replied is the result.
			return hosts, nil
		}

		if n < 30 || buf[3] != opQueryReply {
			continue
		}

		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			continue
		}

		d.macs.Store(host, net.HardwareAddr(buf[24:30]).String())
		hosts = append(hosts, host)
	}
}

// TelnetTransport is a TCP socket implementation of transport.Transport.
type TelnetTransport struct {
	addr           string
	mac            string
	connectTimeout time.Duration
	conn           net.Conn
	pending        []byte // bytes read past the last delimiter
}

var _ transport.Transport = (*TelnetTransport)(nil)

// Connect dials the bridge's data port. When adjustCommParams is true it
// first tunes the bridge's serial flow-control mode to XON/XOFF
// pass-to-host via the management protocol.
func (t *TelnetTransport) Connect(ctx context.Context, adjustCommParams bool) error {
	if t.conn != nil {
		return nil
	}

	if adjustCommParams {
		if err := t.adjustCommParams(ctx); err != nil {
			return err
		}
	}

	conn, err := net.DialTimeout("tcp", t.addr, t.connectTimeout)
	if err != nil {
		return fmt.Errorf("telnet: failed to connect to %s: %w", t.addr, err)
	}

	t.conn = conn
	t.pending = nil

	return nil
}

// adjustCommParams reads the bridge's setup record and, if the serial
// flow-control mode differs from XON/XOFF pass-to-host, writes it back with
// the mode corrected. The write reboots the bridge's serial channel, which
// is why this is opt-in.
func (t *TelnetTransport) adjustCommParams(_ context.Context) error {
	host, _, err := net.SplitHostPort(t.addr)
	if err != nil {
		host = t.addr
	}

	conn, err := net.Dial("udp4", net.JoinHostPort(host, strconv.Itoa(mgmtPort)))
	if err != nil {
		return fmt.Errorf("telnet: failed to reach management port on %s: %w", host, err)
	}
	defer conn.Close()

	record, err := mgmtExchange(conn, []byte{0, 0, 0, opReadSetup}, opReadSetupReply)
	if err != nil {
		return fmt.Errorf("telnet: failed to read setup record: %w", err)
	}
	if len(record) < setupRecordLen {
		return fmt.Errorf("telnet: short setup record (%d bytes)", len(record))
	}

	if record[flowControlOffset] == flowXonXoffPassToHost {
		return nil
	}

	record = record[:setupRecordLen]
	record[flowControlOffset] = flowXonXoffPassToHost

	req := append([]byte{0, 0, 0, opWriteSetup}, record...)
	if _, err := mgmtExchange(conn, req, opWriteSetupReply); err != nil {
		return fmt.Errorf("telnet: failed to write setup record: %w", err)
	}

	return nil
}

// mgmtExchange performs one management request/reply exchange and returns
// the reply payload following the 4-byte header.
func mgmtExchange(conn net.Conn, req []byte, wantOp byte) ([]byte, error) {
	if err := conn.SetDeadline(time.Now().Add(mgmtTimeout)); err != nil {
		return nil, err
	}

	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	if n < 4 || buf[3] != wantOp {
		return nil, fmt.Errorf("unexpected management reply opcode 0x%02X", buf[3])
	}

	return buf[4:n], nil
}

// Write flushes unread input, then transmits the frame bytes.
func (t *TelnetTransport) Write(ctx context.Context, frame string) error {
	if t.conn == nil {
		return transport.ErrNotConnected
	}

	if err := t.FlushInput(ctx); err != nil {
		return err
	}

	if _, err := t.conn.Write(util.EncodeLatin1(frame)); err != nil {
		return fmt.Errorf("telnet: write failed: %w", err)
	}

	return nil
}

// ReadUntil reads until delim appears in the input stream or timeout elapses.
func (t *TelnetTransport) ReadUntil(ctx context.Context, delim []byte, timeout time.Duration) (string, error) {
	if t.conn == nil {
		return "", transport.ErrNotConnected
	}

	deadline := pool.GetTimer(timeout)
	defer pool.PutTimer(deadline)

	buf := append([]byte(nil), t.pending...)
	t.pending = nil
	tmp := make([]byte, 256)

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
			return "", fmt.Errorf("telnet: no delimiter within %v: %w", timeout, transport.ErrTimeout)
		default:
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return "", fmt.Errorf("telnet: failed to set read deadline: %w", err)
		}

		n, err := t.conn.Read(tmp)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return "", fmt.Errorf("telnet: read failed: %w", err)
		}
		buf = append(buf, tmp[:n]...)
	}
}

// FlushInput discards all pending unread input.
func (t *TelnetTransport) FlushInput(_ context.Context) error {
	if t.conn == nil {
		return transport.ErrNotConnected
	}

	t.pending = nil

	// Drain whatever is already buffered by the kernel without blocking.
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return fmt.Errorf("telnet: failed to set read deadline: %w", err)
	}

	tmp := make([]byte, 256)
	for {
		if _, err := t.conn.Read(tmp); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}

			return fmt.Errorf("telnet: flush failed: %w", err)
		}
	}
}

// Close releases the TCP connection. Closing an unopened transport is a no-op.
func (t *TelnetTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	conn := t.conn
	t.conn = nil

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("telnet: close failed: %w", err)
	}

	return nil
}

// IsConnected reports whether the TCP connection is open.
func (t *TelnetTransport) IsConnected() bool {
	return t.conn != nil
}

// Info returns the transport kind, address and hardware address when known.
func (t *TelnetTransport) Info() transport.Info {
	return transport.Info{
		Type:       transport.Telnet,
		Identifier: t.addr,
		MAC:        t.mac,
	}
}
