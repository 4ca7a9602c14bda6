// Package ddrive provides the device models of the d-Drive amplifier family:
// the modular d-Drive rack (1-6 hot-swappable amplifier channels) and the
// single-channel 30DV amplifier.
//
// Family conventions: outgoing frames end with CR LF; responses end with XON
// except for a set of commands that stay CR-delimited; protocol errors appear
// both as "error,<code>" frames and as fixed phrases inside free-text
// responses.
package ddrive

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/arloliu/go-piezo/piezo"
	"github.com/arloliu/go-piezo/transport"
)

// Device model tags.
const (
	DeviceID     = "D-Drive"
	DeviceID30DV = "30DV"
)

// maxChannelSlots is the number of amplifier slots in a d-Drive rack,
// numbered 0-5. Not all slots need to be populated.
const maxChannelSlots = 6

const readTimeout = 500 * time.Millisecond

// cacheableCommands return relatively static configuration values; caching
// them avoids re-polling over the link.
var cacheableCommands = []string{
	"acdescr", "acolmas", "acclmas", "set", "fan", "modon", "monsrc", "cl",
	"sr", "pcf", "errlpf", "elpor", "kp", "ki", "kd", "tf", "notchon",
	"notchf", "notchb", "lpon", "lpf", "gfkt", "gasin", "gosin", "gfsin",
	"gatri", "gotri", "gftri", "gstri", "garec", "gorec", "gfrec", "gsrec",
	"ganoi", "gonoi", "gaswe", "goswe", "gtswe", "sct", "trgss", "trgse",
	"trgsi", "trglen", "trgedge", "trgsrc", "trgos", "recstride", "bright",
}

// channelBackupCommands are the per-channel settings captured by a backup,
// in snapshot order.
var channelBackupCommands = []string{
	"fan", "modon", "monsrc", "cl", "sr", "pcf", "errlpf", "elpor", "kp",
	"ki", "kd", "tf", "notchon", "notchf", "notchb", "lpon", "lpf", "gfkt",
	"gasin", "gosin", "gfsin", "gatri", "gotri", "gftri", "gstri", "garec",
	"gorec", "gfrec", "gsrec", "ganoi", "gonoi", "gaswe", "goswe", "gtswe",
	"sct", "trgss", "trgse", "trgsi", "trglen", "trgedge", "trgsrc", "trgos",
	"recstride", "reclen", "bright",
}

// crDelimited lists the commands whose responses end with a bare CR instead
// of the family's XON delimiter.
var crDelimited = []string{
	"ktemp", "m", "u", "modon", "monsrc", "pcf", "errlpf", "elpor", "sr",
	"kp", "ki", "kd", "tf", "notchon", "notchf", "notchb", "lpon", "lpf",
	"gfkt", "gasin", "gosin", "gfsin", "gatri", "gotri", "gftri", "gstri",
	"garec", "gorec", "gfrec", "gsrec", "ganoi", "gonoi", "gaswe", "goswe",
	"gtswe", "sct", "trgss", "trgse", "trgsi", "trglen", "trgedge", "trgsrc",
	"trgos",
}

// errorSubstrings maps the free-text error phrases the family emits to
// semantic error codes.
var errorSubstrings = map[string]piezo.ErrorCode{
	"command not found":  piezo.CodeUnknownCommand,
	"command mismatch":   piezo.CodeParameterCountExceeded,
	" not present":       piezo.CodeUnknownChannel,
	"unit not available": piezo.CodeActuatorNotConnected,
}

// ChannelBackupCommands returns the per-channel settings captured by a
// backup, in snapshot order.
func ChannelBackupCommands() []string {
	return append([]string(nil), channelBackupCommands...)
}

func readDelimiterOverrides() map[string][]byte {
	overrides := make(map[string][]byte, len(crDelimited))
	for _, cmd := range crDelimited {
		overrides[cmd] = transport.CR
	}

	return overrides
}

// familyProbe returns a probe that sends an empty frame and checks the
// banner for "<ident> V", e.g. "DSM V" on a d-Drive rack. A silent peer is
// a non-match, not a fault.
func familyProbe(ident string) func(ctx context.Context, tp transport.Transport) (bool, error) {
	marker := ident + " V"

	return func(ctx context.Context, tp transport.Transport) (bool, error) {
		if err := tp.Write(ctx, "\r\n"); err != nil {
			return false, err
		}

		banner, err := tp.ReadUntil(ctx, transport.XON, readTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return false, nil
			}

			return false, err
		}

		return strings.Contains(banner, marker), nil
	}
}

// discoverChannels queries the rack status and parses one descriptor line
// per populated amplifier slot. Each populated slot reports a line with a
// "stat,<n>" substring, n in 0-5.
func discoverChannels(ctx context.Context, d *piezo.Device) ([]int, error) {
	resp, err := d.WriteRaw(ctx, "stat")
	if err != nil {
		return nil, err
	}

	var ids []int
	for _, line := range strings.Split(resp, "\n") {
		idx := strings.Index(line, "stat,")
		if idx < 0 || idx+len("stat,") >= len(line) {
			continue
		}

		n := line[idx+len("stat,")]
		if n < '0' || n >= '0'+maxChannelSlots {
			continue
		}

		ids = append(ids, int(n-'0'))
	}

	return ids, nil
}

// Model returns the device model of the modular d-Drive rack.
func Model() *piezo.Model {
	return &piezo.Model{
		ID:                     DeviceID,
		CacheableCommands:      cacheableCommands,
		ChannelBackupCommands:  channelBackupCommands,
		WriteDelimiter:         transport.CRLF,
		ReadDelimiter:          transport.XON,
		ReadDelimiterOverrides: readDelimiterOverrides(),
		ErrorSubstrings:        errorSubstrings,
		ReadTimeout:            readTimeout,
		Probe:                  familyProbe("DSM"),
		DiscoverChannels:       discoverChannels,
	}
}

// Model30DV returns the device model of the single-channel 30DV amplifier.
// It shares the family's command tables and framing, synthesizes exactly one
// fixed channel, and carries no channel address on the wire.
func Model30DV() *piezo.Model {
	return &piezo.Model{
		ID:                     DeviceID30DV,
		CacheableCommands:      cacheableCommands,
		ChannelBackupCommands:  channelBackupCommands,
		WriteDelimiter:         transport.CRLF,
		ReadDelimiter:          transport.XON,
		ReadDelimiterOverrides: readDelimiterOverrides(),
		ErrorSubstrings:        errorSubstrings,
		SingleChannel:          true,
		ReadTimeout:            readTimeout,
		Probe:                  familyProbe("AP"),
		DiscoverChannels: func(_ context.Context, _ *piezo.Device) ([]int, error) {
			return []int{0}, nil
		},
	}
}

// Register registers both family models with the model registry.
// Call once at process start.
func Register() {
	piezo.RegisterModel(Model())
	piezo.RegisterModel(Model30DV())
}
