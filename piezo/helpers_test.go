package piezo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-piezo/transport"
)

// fakeAmp emulates a small multi-channel amplifier behind the Transport
// interface. Channel-addressed commands are stored under "cmd,ch" keys,
// global commands under the bare mnemonic. Reads echo the addressed command
// followed by the stored values; writes acknowledge with the bare mnemonic.
type fakeAmp struct {
	connected bool
	adjusted  bool
	closed    int

	banner  string
	globals map[string]struct{}
	vals    map[string][]string

	// responses overrides the reply for an exact frame, bypassing the store.
	responses map[string]string

	lastFrame   string
	frames      []string
	valueWrites int

	writeErr error
	readErr  error
}

func newFakeAmp() *fakeAmp {
	return &fakeAmp{
		banner:  "TST V1.00",
		globals: map[string]struct{}{"mode": {}, "meas": {}, "chan": {}},
		vals: map[string][]string{
			"chan": {"0", "1"},
			"mode": {"2"},
			"meas": {"1.5"},
			"kp,0": {"10.0"},
			"cl,0": {"1"},
			"kp,1": {"20.0"},
			"cl,1": {"0"},
		},
		responses: make(map[string]string),
	}
}

func (f *fakeAmp) Connect(_ context.Context, adjustCommParams bool) error {
	f.connected = true
	f.adjusted = adjustCommParams

	return nil
}

func (f *fakeAmp) Write(_ context.Context, frame string) error {
	if f.writeErr != nil {
		return f.writeErr
	}

	f.lastFrame = strings.TrimRight(frame, "\r\n")
	f.frames = append(f.frames, f.lastFrame)

	return nil
}

func (f *fakeAmp) ReadUntil(_ context.Context, delim []byte, _ time.Duration) (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}

	return f.respond() + string(delim), nil
}

func (f *fakeAmp) respond() string {
	frame := f.lastFrame
	if resp, ok := f.responses[frame]; ok {
		return resp
	}
	if frame == "" {
		return f.banner
	}

	parts := strings.Split(frame, ",")
	base := parts[0]

	if _, global := f.globals[base]; global {
		if len(parts) == 1 {
			return frame + "," + strings.Join(f.vals[frame], ",")
		}

		f.vals[base] = parts[1:]
		f.valueWrites++

		return base
	}

	if len(parts) < 2 {
		return "error,2"
	}

	key := base + "," + parts[1]
	if len(parts) == 2 {
		vals, ok := f.vals[key]
		if !ok {
			return "error,2"
		}

		return key + "," + strings.Join(vals, ",")
	}

	f.vals[key] = parts[2:]
	f.valueWrites++

	return base
}

func (f *fakeAmp) FlushInput(_ context.Context) error { return nil }

func (f *fakeAmp) Close() error {
	f.connected = false
	f.closed++

	return nil
}

func (f *fakeAmp) IsConnected() bool { return f.connected }

func (f *fakeAmp) Info() transport.Info {
	return transport.Info{Type: transport.Serial, Identifier: "fake0"}
}

var _ transport.Transport = (*fakeAmp)(nil)

func testModel() *Model {
	return &Model{
		ID:                    "TST",
		CacheableCommands:     []string{"kp", "cl", "mode"},
		BackupCommands:        []string{"mode"},
		ChannelBackupCommands: []string{"kp", "cl"},
		WriteDelimiter:        transport.CRLF,
		ReadDelimiter:         transport.CRLF,
		ErrorSubstrings: map[string]ErrorCode{
			"command not found": CodeUnknownCommand,
		},
		ReadTimeout: 100 * time.Millisecond,
		Probe: func(ctx context.Context, tp transport.Transport) (bool, error) {
			if err := tp.Write(ctx, "\r\n"); err != nil {
				return false, err
			}

			banner, err := tp.ReadUntil(ctx, transport.CRLF, 100*time.Millisecond)
			if err != nil {
				return false, err
			}

			return strings.Contains(banner, "TST V"), nil
		},
		DiscoverChannels: func(ctx context.Context, d *Device) ([]int, error) {
			tokens, err := d.Read(ctx, "chan")
			if err != nil {
				return nil, err
			}

			ids := make([]int, 0, len(tokens))
			for _, tok := range tokens {
				id, err := strconv.Atoi(tok)
				if err != nil {
					return nil, err
				}
				ids = append(ids, id)
			}

			return ids, nil
		},
	}
}

func singleChannelModel() *Model {
	m := testModel()
	m.ID = "TST1"
	m.SingleChannel = true
	m.DiscoverChannels = func(_ context.Context, _ *Device) ([]int, error) {
		return []int{0}, nil
	}

	return m
}
