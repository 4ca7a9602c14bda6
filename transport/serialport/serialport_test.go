package serialport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-piezo/transport"
)

func TestDriver_Kind(t *testing.T) {
	assert.Equal(t, transport.Serial, NewDriver().Kind())
}

func TestDriver_Open(t *testing.T) {
	tp := NewDriver(WithBaudRate(9600)).Open("/dev/ttyUSB3")

	info := tp.Info()
	assert.Equal(t, transport.Serial, info.Type)
	assert.Equal(t, "/dev/ttyUSB3", info.Identifier)
	assert.False(t, tp.IsConnected())
}

func TestSerialTransport_NotConnected(t *testing.T) {
	tp := NewDriver().Open("/dev/ttyUSB3")
	ctx := context.Background()

	require.ErrorIs(t, tp.Write(ctx, "cl\r\n"), transport.ErrNotConnected)

	_, err := tp.ReadUntil(ctx, transport.XON, time.Millisecond)
	require.ErrorIs(t, err, transport.ErrNotConnected)

	require.ErrorIs(t, tp.FlushInput(ctx), transport.ErrNotConnected)

	// Closing an unopened transport is a no-op.
	assert.NoError(t, tp.Close())
}
