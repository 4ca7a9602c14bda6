package ddrive

import (
	"context"
	"fmt"
	"strconv"

	"github.com/arloliu/go-piezo/piezo"
)

// Recorder mnemonics. The two hardware recorder channels always record
// simultaneously: position on signal 1, actuator voltage on signal 2.
const (
	cmdRecorderStart   = "recstart"
	cmdRecorderLength  = "reclen"
	cmdRecorderStride  = "recstride"
	cmdRecorderPointer = "recrdptr"
	cmdRecorderData1   = "m"
	cmdRecorderData2   = "u"
)

// Signal selects one of the two hardware recorder signals.
type Signal int

const (
	// SignalPosition is the measured position from the sensor.
	SignalPosition Signal = 1
	// SignalVoltage is the output voltage applied to the actuator.
	SignalVoltage Signal = 2
)

func (s Signal) command() string {
	if s == SignalVoltage {
		return cmdRecorderData2
	}

	return cmdRecorderData1
}

// ProgressFunc reports bulk read progress after each retrieved sample.
type ProgressFunc func(done, total int)

// Recorder drives the two-channel data recorder of one amplifier channel
// (up to 500k samples per signal at 50 kHz).
//
// The device protocol retrieves recorded data one sample per round trip:
// the read pointer advances after each data read, and there is no batched
// multi-sample command. ReadAll preserves that contract, so retrieving long
// recordings is bounded by link latency.
type Recorder struct {
	ch *piezo.Channel
}

// NewRecorder creates a Recorder for the given amplifier channel.
func NewRecorder(ch *piezo.Channel) *Recorder {
	return &Recorder{ch: ch}
}

// SetLength sets the recorder memory length in samples.
func (r *Recorder) SetLength(ctx context.Context, samples int) error {
	_, err := r.ch.Write(ctx, cmdRecorderLength, samples)
	return err
}

// Length returns the recorder memory length in samples.
func (r *Recorder) Length(ctx context.Context) (int, error) {
	return r.readInt(ctx, cmdRecorderLength)
}

// SetStride sets the recording stride (samples skipped between stored samples).
func (r *Recorder) SetStride(ctx context.Context, stride int) error {
	_, err := r.ch.Write(ctx, cmdRecorderStride, stride)
	return err
}

// Stride returns the recording stride.
func (r *Recorder) Stride(ctx context.Context) (int, error) {
	return r.readInt(ctx, cmdRecorderStride)
}

// Start begins recording on both signals.
func (r *Recorder) Start(ctx context.Context) error {
	_, err := r.ch.Write(ctx, cmdRecorderStart)
	return err
}

// Sample reads one recorded sample of the given signal. A non-negative
// index positions the read pointer first; index -1 reads at the current
// pointer, which the device advances after each data read.
func (r *Recorder) Sample(ctx context.Context, sig Signal, index int) (float64, error) {
	if index >= 0 {
		if _, err := r.ch.Write(ctx, cmdRecorderPointer, index); err != nil {
			return 0, err
		}
	}

	return r.readFloat(ctx, sig.command())
}

// ReadAll retrieves every recorded sample of the given signal, one round
// trip per sample. The whole retrieval runs as one logical operation under
// the device lock so no other exchange interleaves and shifts the read
// pointer. progress may be nil.
func (r *Recorder) ReadAll(ctx context.Context, sig Signal, progress ProgressFunc) ([]float64, error) {
	length, err := r.Length(ctx)
	if err != nil {
		return nil, err
	}

	data := make([]float64, 0, length)

	err = r.ch.Device().Atomic(ctx, func(ctx context.Context) error {
		for i := 0; i < length; i++ {
			index := -1
			if i == 0 {
				index = 0
			}

			v, err := r.Sample(ctx, sig, index)
			if err != nil {
				return err
			}
			data = append(data, v)

			if progress != nil {
				progress(i+1, length)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// The response tokens echo the channel address before the value, so the
// value is always the last token.

func (r *Recorder) readInt(ctx context.Context, cmd string) (int, error) {
	tokens, err := r.ch.Read(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("ddrive: empty response for %q", cmd)
	}

	return strconv.Atoi(tokens[len(tokens)-1])
}

func (r *Recorder) readFloat(ctx context.Context, cmd string) (float64, error) {
	tokens, err := r.ch.Read(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("ddrive: empty response for %q", cmd)
	}

	return strconv.ParseFloat(tokens[len(tokens)-1], 64)
}
