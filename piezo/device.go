// Package piezo implements the device session core for piezo-actuator
// amplifiers: command dispatch over a transport, response parsing, command
// caching, exchange serialization, channel addressing and settings
// backup/restore.
//
// A Device turns logical parameter reads and writes into framed wire
// exchanges. Every command funnels through one reentrant lock so that at
// most one write+read exchange is in flight per physical link, while a
// single logical operation (a backup, a grouped Atomic block) may compose
// many exchanges without deadlocking itself.
package piezo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/arloliu/go-piezo/internal/relock"
	"github.com/arloliu/go-piezo/internal/util"
	"github.com/arloliu/go-piezo/logger"
	"github.com/arloliu/go-piezo/transport"
)

// DeviceInfo describes a connected device.
type DeviceInfo struct {
	// DeviceID is the model tag, e.g. "D-Drive".
	DeviceID string
	// Transport identifies the link the device is reachable on.
	Transport transport.Info
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s - %s", i.Transport, i.DeviceID)
}

// Device is a session with one physical amplifier device.
//
// The command cache and the lock are created once at construction and live
// for the session's lifetime; the channel set is replaced wholesale by
// Connect and only read afterwards.
type Device struct {
	model    *Model
	tp       transport.Transport
	cache    *CommandCache
	lock     *relock.Lock
	logger   logger.Logger
	channels map[int]*Channel
}

// DeviceOption is a functional option for configuring a Device.
type DeviceOption func(*Device)

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) DeviceOption {
	return func(d *Device) { d.logger = l }
}

// WithCacheDisabled constructs the session with command caching off, for
// setups where another process may mutate the device concurrently.
func WithCacheDisabled() DeviceOption {
	return func(d *Device) { d.cache.SetEnabled(false) }
}

// NewDevice creates an unconnected session for model over a transport of the
// given kind. The transport kind must have been registered.
func NewDevice(m *Model, kind transport.Type, identifier string, opts ...DeviceOption) (*Device, error) {
	tp, err := transport.New(kind, identifier)
	if err != nil {
		return nil, err
	}

	return NewDeviceWithTransport(m, tp, opts...), nil
}

// NewDeviceWithTransport creates an unconnected session for model over an
// existing transport. The session takes ownership of the transport.
func NewDeviceWithTransport(m *Model, tp transport.Transport, opts ...DeviceOption) *Device {
	d := &Device{
		model:  m,
		tp:     tp,
		cache:  NewCommandCache(m.CacheableCommands),
		lock:   relock.New(),
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Model returns the session's device model.
func (d *Device) Model() *Model { return d.model }

// Cache returns the session's command cache for explicit invalidation or
// enable/disable control.
func (d *Device) Cache() *CommandCache { return d.cache }

// IsConnected reports whether the underlying transport link is open.
func (d *Device) IsConnected() bool {
	return d.tp != nil && d.tp.IsConnected()
}

// Info returns the device ID and transport metadata of the connected device.
func (d *Device) Info() (DeviceInfo, error) {
	if !d.IsConnected() {
		return DeviceInfo{}, fmt.Errorf("%w: not connected", ErrDeviceUnavailable)
	}

	return DeviceInfo{DeviceID: d.model.ID, Transport: d.tp.Info()}, nil
}

// Channels returns the channel set discovered by Connect, keyed by channel id.
// The returned map must be treated as read-only.
func (d *Device) Channels() map[int]*Channel {
	return d.channels
}

// Channel returns the channel with the given id.
func (d *Device) Channel(id int) (*Channel, bool) {
	ch, ok := d.channels[id]
	return ch, ok
}

// Connect opens the transport, probes the peer for the expected device model
// and discovers the populated channels, replacing the session's channel set.
//
// On probe mismatch the transport is closed and ErrDeviceMismatch returned.
// When adjustCommParams is true, the transport auto-tunes link flow-control
// parameters required for correct framing.
func (d *Device) Connect(ctx context.Context, adjustCommParams bool) error {
	if d.IsConnected() {
		d.logger.Debug("piezo: device is already connected")

		return nil
	}

	if err := d.tp.Connect(ctx, adjustCommParams); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	ok, err := d.model.Probe(ctx, d.tp)
	if err != nil || !ok {
		_ = d.tp.Close()

		if err != nil {
			return fmt.Errorf("%w: expected %s: probe failed: %w", ErrDeviceMismatch, d.model.ID, err)
		}

		return fmt.Errorf("%w: expected %s", ErrDeviceMismatch, d.model.ID)
	}

	ids, err := d.model.DiscoverChannels(relock.WithOwner(ctx), d)
	if err != nil {
		return err
	}

	channels := make(map[int]*Channel, len(ids))
	for _, id := range ids {
		channels[id] = &Channel{id: id, dev: d}
	}
	d.channels = channels

	d.logger.Debug("piezo: device connected", "model", d.model.ID, "channels", len(channels))

	return nil
}

// Close releases the transport link.
func (d *Device) Close() error {
	if !d.IsConnected() {
		d.logger.Debug("piezo: transport is already closed")

		return nil
	}

	return d.tp.Close()
}

// Atomic runs fn while holding the device lock, so the exchanges fn performs
// through the passed context form one uninterrupted group.
func (d *Device) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = relock.WithOwner(ctx)

	return d.lock.Do(ctx, func() error { return fn(ctx) })
}

// Read reads the current value of cmd, serving cacheable commands from the
// command cache without touching the transport. It returns the response
// tokens in device order, with the mnemonic echo removed.
func (d *Device) Read(ctx context.Context, cmd string) ([]string, error) {
	if tokens, ok := d.cache.Get(cmd); ok {
		return tokens, nil
	}

	d.logger.Debug("piezo: reading values", "cmd", cmd)

	ctx = relock.WithOwner(ctx)
	resp, err := d.WriteRaw(ctx, cmd)
	if err != nil {
		return nil, err
	}

	tokens, err := d.parseResponse(resp)
	if err != nil {
		return nil, err
	}

	// Some string values, such as units, carry trailing spaces.
	for i := range tokens {
		tokens[i] = strings.TrimRight(tokens[i], " ")
	}

	d.cache.Set(cmd, tokens)

	return tokens, nil
}

// Write writes params to cmd. With no params it behaves exactly like Read.
//
// Parameters serialize to their decimal/literal string form, booleans as
// "0"/"1". On success the cache entry for cmd is updated with the serialized
// values just written, so an immediately following Read reflects the write
// without a round trip. The returned tokens are the parsed response, which
// is typically empty.
func (d *Device) Write(ctx context.Context, cmd string, params ...any) ([]string, error) {
	if len(params) == 0 {
		return d.Read(ctx, cmd)
	}

	values := make([]string, len(params))
	for i, p := range params {
		v, err := formatParam(p)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	ctx = relock.WithOwner(ctx)
	resp, err := d.WriteRaw(ctx, cmd+","+strings.Join(values, ","))
	if err != nil {
		return nil, err
	}

	tokens, err := d.parseResponse(resp)
	if err != nil {
		return nil, err
	}

	d.cache.Set(cmd, values)

	return tokens, nil
}

// WriteRaw performs one framed write+read exchange and returns the raw
// response with flow-control bytes stripped. It acquires the device lock for
// the duration of the exchange and wraps transport faults as
// ErrDeviceUnavailable. Most callers want Read or Write instead.
func (d *Device) WriteRaw(ctx context.Context, cmd string) (string, error) {
	if !d.IsConnected() {
		return "", fmt.Errorf("%w: not connected", ErrDeviceUnavailable)
	}

	if err := d.lock.Acquire(ctx); err != nil {
		return "", err
	}
	defer d.lock.Release()

	if err := d.tp.Write(ctx, cmd+string(d.model.WriteDelimiter)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	resp, err := d.tp.ReadUntil(ctx, d.readDelimiterFor(cmd), d.model.readTimeout())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	return util.StripFlowControl(resp), nil
}

// readDelimiterFor resolves the read delimiter for one outgoing frame.
// Per-command overrides apply to read-style frames (at most a channel
// address) and to the recorder data commands "m" and "u", which stay
// CR-delimited even with an index parameter.
func (d *Device) readDelimiterFor(frame string) []byte {
	if len(d.model.ReadDelimiterOverrides) == 0 {
		return d.model.ReadDelimiter
	}

	if strings.Count(frame, ",") <= 1 || strings.HasPrefix(frame, "m,") || strings.HasPrefix(frame, "u,") {
		base, _, _ := strings.Cut(frame, ",")
		if delim, ok := d.model.ReadDelimiterOverrides[strings.ToLower(base)]; ok {
			return delim
		}
	}

	return d.model.ReadDelimiter
}

// channelCommand addresses cmd to a channel by appending the channel id as a
// trailing positional argument. Single-channel models carry no address.
func (d *Device) channelCommand(cmd string, channelID int) string {
	if d.model.SingleChannel {
		return cmd
	}

	return fmt.Sprintf("%s,%d", cmd, channelID)
}

// parseResponse classifies and tokenizes one response frame.
//
// A frame is either the literal marker "error" with an optional numeric
// code, or a normal frame of mnemonic echo plus comma-separated values.
// Family error substrings are checked first and take precedence.
func (d *Device) parseResponse(resp string) ([]string, error) {
	lower := strings.ToLower(resp)
	for substr, code := range d.model.ErrorSubstrings {
		if strings.Contains(lower, substr) {
			return nil, FromCode(int(code))
		}
	}

	if strings.HasPrefix(resp, "error") {
		return nil, parseErrorFrame(resp)
	}

	_, rest, found := strings.Cut(resp, ",")
	if !found {
		return []string{}, nil
	}

	tokens := strings.Split(rest, ",")
	for i := range tokens {
		tokens[i] = util.TrimControl(tokens[i])
	}

	return tokens, nil
}

// parseErrorFrame maps an "error[,code]" frame to its sentinel DeviceError.
// A missing or unparseable code degrades to ErrNotSpecified rather than
// raising a secondary parse failure.
func parseErrorFrame(resp string) error {
	_, rest, found := strings.Cut(resp, ",")
	if !found {
		return ErrNotSpecified
	}

	code, err := strconv.Atoi(util.TrimControl(rest))
	if err != nil {
		return ErrNotSpecified
	}

	return FromCode(code)
}

// formatParam serializes one parameter to its wire string form.
func formatParam(p any) (string, error) {
	switch v := p.(type) {
	case bool:
		if v {
			return "1", nil
		}

		return "0", nil
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedParam, p)
	}
}

// Backup reads the current device settings into an ordered snapshot: every
// channel's backup-relevant commands first (keyed "command,channelId" on
// multi-channel models, bare command on single-channel models), then each
// command in extra (keyed by bare command).
//
// The cache is cleared up front so the snapshot holds fresh values. The whole
// backup runs as one logical operation under the device lock.
func (d *Device) Backup(ctx context.Context, extra ...string) (*Snapshot, error) {
	snap := NewSnapshot()

	d.cache.Clear()

	ctx = relock.WithOwner(ctx)

	ids := make([]int, 0, len(d.channels))
	for id := range d.channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		ch := d.channels[id]
		for _, cmd := range d.model.ChannelBackupCommands {
			tokens, err := ch.Read(ctx, cmd)
			if err != nil {
				return nil, err
			}
			// The response echoes the channel address as its first token.
			// Drop it so a restore write reproduces the original frame.
			if !d.model.SingleChannel && len(tokens) > 0 && tokens[0] == strconv.Itoa(id) {
				tokens = tokens[1:]
			}
			snap.Set(d.channelCommand(cmd, id), tokens)
		}
	}

	for _, cmd := range d.model.BackupCommands {
		tokens, err := d.Read(ctx, cmd)
		if err != nil {
			return nil, err
		}
		snap.Set(cmd, tokens)
	}

	for _, cmd := range extra {
		tokens, err := d.Read(ctx, cmd)
		if err != nil {
			return nil, err
		}
		snap.Set(cmd, tokens)
	}

	return snap, nil
}

// Restore replays a snapshot as writes, one per key, in snapshot order.
// A backup taken immediately after a restore reproduces the same snapshot.
func (d *Device) Restore(ctx context.Context, snap *Snapshot) error {
	ctx = relock.WithOwner(ctx)

	for _, key := range snap.Keys() {
		tokens, _ := snap.Get(key)

		params := make([]any, len(tokens))
		for i, tok := range tokens {
			params[i] = tok
		}

		if _, err := d.Write(ctx, key, params...); err != nil {
			return err
		}
	}

	return nil
}
