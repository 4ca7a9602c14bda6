package ddrive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rackRecorder(t *testing.T, link *fakeLink) *Recorder {
	t.Helper()

	d := connectRack(t, link)
	ch, ok := d.Channel(0)
	require.True(t, ok)

	return NewRecorder(ch)
}

func TestRecorder_LengthAndStride(t *testing.T) {
	link := newFakeLink()
	r := rackRecorder(t, link)
	ctx := context.Background()

	require.NoError(t, r.SetLength(ctx, 500))
	assert.Equal(t, 500, link.recLength)

	n, err := r.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, n)

	require.NoError(t, r.SetStride(ctx, 4))
	assert.Equal(t, 4, link.recStride)
}

func TestRecorder_SampleAdvancesPointer(t *testing.T) {
	link := newFakeLink()
	link.posData = []float64{0.5, 1.25, 2.75}
	r := rackRecorder(t, link)
	ctx := context.Background()

	v, err := r.Sample(ctx, SignalPosition, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)

	// Index -1 reads at the pointer the device advanced.
	v, err = r.Sample(ctx, SignalPosition, -1)
	require.NoError(t, err)
	assert.Equal(t, 2.75, v)
}

func TestRecorder_ReadAll(t *testing.T) {
	link := newFakeLink()
	link.posData = []float64{0.5, 1.25, 2.75}
	link.voltData = []float64{10, 20, 30}
	link.recLength = 3
	r := rackRecorder(t, link)
	ctx := context.Background()

	var progress [][2]int
	data, err := r.ReadAll(ctx, SignalPosition, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.25, 2.75}, data)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)

	// The pointer is positioned once up front; later reads ride the
	// device's auto-advance.
	assert.Equal(t, 1, link.framesWithPrefix("recrdptr"))
	assert.Equal(t, 3, link.framesWithPrefix("m,"))

	// The second signal records simultaneously and reads independently.
	volt, err := r.ReadAll(ctx, SignalVoltage, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30}, volt)
}

func TestRecorder_ReadAllEmpty(t *testing.T) {
	link := newFakeLink()
	r := rackRecorder(t, link)

	data, err := r.ReadAll(context.Background(), SignalPosition, nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}
