package piezo

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-piezo/transport"
)

// Model describes one device model: its command tables, frame delimiters,
// probe and channel discovery behavior.
//
// Models are plain data consumed by the Device session core; the large
// catalogue of per-parameter accessors lives outside this library. A Model
// is immutable after registration.
type Model struct {
	// ID is the device model tag, e.g. "D-Drive" or "30DV".
	ID string

	// CacheableCommands lists the mnemonics whose last response may be
	// served from the command cache.
	CacheableCommands []string

	// BackupCommands lists device-global mnemonics included in a backup,
	// keyed in the snapshot by bare command.
	BackupCommands []string

	// ChannelBackupCommands lists per-channel mnemonics included in a
	// backup for every populated channel, in snapshot order.
	ChannelBackupCommands []string

	// WriteDelimiter terminates outgoing frames.
	WriteDelimiter []byte

	// ReadDelimiter terminates incoming frames unless overridden per command.
	ReadDelimiter []byte

	// ReadDelimiterOverrides maps bare mnemonics to read delimiters for
	// device families whose framing differs per command.
	ReadDelimiterOverrides map[string][]byte

	// ErrorSubstrings maps fixed error phrases, matched case-insensitively
	// inside otherwise-unstructured responses, to semantic error codes.
	// The substring check runs before the numeric "error,<code>" path and
	// takes precedence whenever both could match.
	ErrorSubstrings map[string]ErrorCode

	// SingleChannel marks models with exactly one fixed channel; their
	// frames carry no channel address.
	SingleChannel bool

	// ReadTimeout bounds each response read. Zero means transport.DefaultTimeout.
	ReadTimeout time.Duration

	// Probe confirms the connected peer belongs to this model family via a
	// short challenge/response exchange. A read timeout means "no match",
	// not a fault.
	Probe func(ctx context.Context, tp transport.Transport) (bool, error)

	// DiscoverChannels returns the ids of the populated channel slots.
	// It runs during Connect, after a successful probe.
	DiscoverChannels func(ctx context.Context, d *Device) ([]int, error)
}

func (m *Model) readTimeout() time.Duration {
	if m.ReadTimeout > 0 {
		return m.ReadTimeout
	}

	return transport.DefaultTimeout
}

var modelRegistry = xsync.NewMapOf[string, *Model]()

// RegisterModel makes a model available to FromDetectedDevice and ProbeAny.
// Call once per model at process start; registering the same ID again
// replaces the earlier model.
func RegisterModel(m *Model) {
	modelRegistry.Store(m.ID, m)
}

// ModelByID returns the registered model with the given ID.
func ModelByID(id string) (*Model, bool) {
	return modelRegistry.Load(id)
}

// ProbeAny returns a discovery probe that tries every registered model
// against a candidate, in unspecified order, and reports the first match.
func ProbeAny() transport.ProbeFunc {
	return func(ctx context.Context, tp transport.Transport) (string, error) {
		var matched string
		modelRegistry.Range(func(id string, m *Model) bool {
			ok, err := m.Probe(ctx, tp)
			if err == nil && ok {
				matched = id
				return false
			}

			return true
		})

		return matched, nil
	}
}

// ProbeFunc returns a discovery probe matching only this model.
func (m *Model) ProbeFunc() transport.ProbeFunc {
	return func(ctx context.Context, tp transport.Transport) (string, error) {
		ok, err := m.Probe(ctx, tp)
		if err != nil || !ok {
			return "", err
		}

		return m.ID, nil
	}
}

// FromDetectedDevice constructs an unconnected Device for a discovery result,
// looking up the model by the descriptor's resolved device ID.
func FromDetectedDevice(det transport.DetectedDevice, opts ...DeviceOption) (*Device, error) {
	m, ok := ModelByID(det.DeviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, det.DeviceID)
	}

	return NewDevice(m, det.Info.Type, det.Info.Identifier, opts...)
}

// DiscoverDevices scans the enabled transport kinds for devices matching any
// registered model and returns an unconnected Device per match.
func DiscoverDevices(ctx context.Context, flags transport.DiscoverFlags, opts ...DeviceOption) ([]*Device, error) {
	detected, err := transport.Discover(ctx, flags, ProbeAny())
	if err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, len(detected))
	for _, det := range detected {
		dev, err := FromDetectedDevice(det, opts...)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}

	return devices, nil
}
