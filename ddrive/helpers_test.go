package ddrive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-piezo/transport"
)

// fakeLink emulates a d-Drive rack behind the Transport interface: a banner
// on an empty frame, a scripted "stat" report, per-channel settings and the
// auto-advancing recorder read pointer.
type fakeLink struct {
	connected bool
	closed    int

	banner string
	stat   string

	// responses overrides the reply for an exact frame.
	responses map[string]string

	vals map[string][]string

	recLength int
	recStride int
	recPtr    int
	posData   []float64
	voltData  []float64

	lastFrame  string
	frames     []string
	lastDelim  []byte
	delimByCmd map[string][]byte
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		banner:     "DSM V3.5.1 , Jan 10 2022",
		stat:       "stat\namplifier stat,0: ok",
		responses:  make(map[string]string),
		vals:       make(map[string][]string),
		delimByCmd: make(map[string][]byte),
	}
}

func (f *fakeLink) Connect(_ context.Context, _ bool) error {
	f.connected = true
	return nil
}

func (f *fakeLink) Write(_ context.Context, frame string) error {
	f.lastFrame = strings.TrimRight(frame, "\r\n")
	f.frames = append(f.frames, f.lastFrame)

	return nil
}

func (f *fakeLink) ReadUntil(_ context.Context, delim []byte, _ time.Duration) (string, error) {
	f.lastDelim = delim
	base, _, _ := strings.Cut(f.lastFrame, ",")
	f.delimByCmd[base] = delim

	resp, err := f.respond()
	if err != nil {
		return "", err
	}

	return resp + string(delim), nil
}

func (f *fakeLink) respond() (string, error) {
	frame := f.lastFrame
	if resp, ok := f.responses[frame]; ok {
		return resp, nil
	}

	switch {
	case frame == "":
		if f.banner == "" {
			return "", transport.ErrTimeout
		}

		return f.banner, nil
	case frame == "stat":
		return f.stat, nil
	}

	parts := strings.Split(frame, ",")
	base := parts[0]

	switch base {
	case "reclen", "recstride", "recrdptr", "recstart":
		return f.recorderExchange(base, parts)
	case cmdRecorderData1:
		return f.dataExchange(parts, f.posData)
	case cmdRecorderData2:
		return f.dataExchange(parts, f.voltData)
	}

	// Generic setting: "cmd,ch" reads, "cmd,ch,values..." writes.
	if len(parts) >= 3 {
		f.vals[parts[0]+","+parts[1]] = parts[2:]
		return base, nil
	}

	vals, ok := f.vals[frame]
	if !ok {
		return "error,2", nil
	}

	return frame + "," + strings.Join(vals, ","), nil
}

func (f *fakeLink) recorderExchange(base string, parts []string) (string, error) {
	read := len(parts) == 2

	switch base {
	case "reclen":
		if read {
			return fmt.Sprintf("%s,%s,%d", base, parts[1], f.recLength), nil
		}
		f.recLength, _ = strconv.Atoi(parts[2])
	case "recstride":
		if read {
			return fmt.Sprintf("%s,%s,%d", base, parts[1], f.recStride), nil
		}
		f.recStride, _ = strconv.Atoi(parts[2])
	case "recrdptr":
		if read {
			return fmt.Sprintf("%s,%s,%d", base, parts[1], f.recPtr), nil
		}
		f.recPtr, _ = strconv.Atoi(parts[2])
	case "recstart":
		f.recPtr = 0
	}

	return base, nil
}

func (f *fakeLink) dataExchange(parts []string, data []float64) (string, error) {
	if len(parts) >= 3 {
		// Data commands accept an explicit index parameter.
		f.recPtr, _ = strconv.Atoi(parts[2])
	}
	if f.recPtr < 0 || f.recPtr >= len(data) {
		return "error,4", nil
	}

	v := data[f.recPtr]
	f.recPtr++

	return fmt.Sprintf("%s,%s,%.3f", parts[0], parts[1], v), nil
}

func (f *fakeLink) FlushInput(_ context.Context) error { return nil }

func (f *fakeLink) Close() error {
	f.connected = false
	f.closed++

	return nil
}

func (f *fakeLink) IsConnected() bool { return f.connected }

func (f *fakeLink) Info() transport.Info {
	return transport.Info{Type: transport.Serial, Identifier: "/dev/ttyUSB0"}
}

var _ transport.Transport = (*fakeLink)(nil)

func (f *fakeLink) framesWithPrefix(prefix string) int {
	n := 0
	for _, frame := range f.frames {
		if strings.HasPrefix(frame, prefix) {
			n++
		}
	}

	return n
}
