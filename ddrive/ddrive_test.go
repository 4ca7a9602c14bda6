package ddrive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-piezo/piezo"
	"github.com/arloliu/go-piezo/transport"
)

func connectRack(t *testing.T, link *fakeLink) *piezo.Device {
	t.Helper()

	d := piezo.NewDeviceWithTransport(Model(), link)
	require.NoError(t, d.Connect(context.Background(), false))

	return d
}

func TestModel_ProbeMatchesFamilyBanner(t *testing.T) {
	ctx := context.Background()

	link := newFakeLink()
	ok, err := Model().Probe(ctx, link)
	require.NoError(t, err)
	assert.True(t, ok)

	// A 30DV banner is not a rack.
	link.banner = "AP V3.1.0 , Jun 20 2023"
	ok, err = Model().Probe(ctx, link)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Model30DV().Probe(ctx, link)
	require.NoError(t, err)
	assert.True(t, ok)

	// A silent peer is a non-match, not a fault.
	link.banner = ""
	ok, err = Model().Probe(ctx, link)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect_DiscoversPopulatedSlots(t *testing.T) {
	link := newFakeLink()
	link.stat = "stat\namplifier stat,0: ok\nempty slot\namplifier stat,3: ok\namplifier stat,5: ok"

	d := connectRack(t, link)

	require.Len(t, d.Channels(), 3)
	for _, id := range []int{0, 3, 5} {
		_, ok := d.Channel(id)
		assert.True(t, ok, "slot %d", id)
	}
}

func TestConnect_RejectsForeignDevice(t *testing.T) {
	link := newFakeLink()
	link.banner = "NV200/D_NET V2.0"

	d := piezo.NewDeviceWithTransport(Model(), link)
	err := d.Connect(context.Background(), false)
	require.ErrorIs(t, err, piezo.ErrDeviceMismatch)
	assert.Equal(t, 1, link.closed)
}

func TestReadDelimiters(t *testing.T) {
	link := newFakeLink()
	link.vals["kp,0"] = []string{"10.0"}
	link.vals["acdescr,0"] = []string{"PSH 4z"}

	d := connectRack(t, link)
	ch, ok := d.Channel(0)
	require.True(t, ok)
	ctx := context.Background()

	_, err := ch.Read(ctx, "kp")
	require.NoError(t, err)
	assert.Equal(t, transport.CR, link.delimByCmd["kp"])

	_, err = ch.Read(ctx, "acdescr")
	require.NoError(t, err)
	assert.Equal(t, transport.XON, link.delimByCmd["acdescr"])

	// Rack status stays on the family delimiter.
	assert.Equal(t, transport.XON, link.delimByCmd["stat"])
}

func TestErrorSubstrings(t *testing.T) {
	link := newFakeLink()
	d := connectRack(t, link)
	ctx := context.Background()

	link.responses["fan,0"] = "unit not available"
	_, err := d.Read(ctx, "fan,0")
	require.ErrorIs(t, err, piezo.ErrActuatorNotConnected)

	link.responses["sr,0"] = "Command Mismatch!"
	_, err = d.Read(ctx, "sr,0")
	require.ErrorIs(t, err, piezo.ErrParameterCountExceeded)

	link.responses["rohs,9"] = "channel 9 not present"
	_, err = d.Read(ctx, "rohs,9")
	require.ErrorIs(t, err, piezo.ErrUnknownChannel)

	// Numeric error frames still classify by code.
	link.responses["sct,0,7"] = "error,4"
	_, err = d.Write(ctx, "sct,0", 7)
	require.ErrorIs(t, err, piezo.ErrParameterRangeExceeded)
}

func Test30DV_SingleChannel(t *testing.T) {
	link := newFakeLink()
	link.banner = "AP V3.1.0"

	d := piezo.NewDeviceWithTransport(Model30DV(), link)
	ctx := context.Background()
	require.NoError(t, d.Connect(ctx, false))

	// Exactly one synthesized channel, no status exchange.
	require.Len(t, d.Channels(), 1)
	assert.Equal(t, 0, link.framesWithPrefix("stat"))

	// Frames carry no channel address.
	ch, ok := d.Channel(0)
	require.True(t, ok)
	link.responses["sr,500"] = "sr"
	_, err := ch.Write(ctx, "sr", 500.0)
	require.NoError(t, err)
	assert.Equal(t, "sr,500", link.lastFrame)
}

func TestRegister_ExposesBothModels(t *testing.T) {
	Register()

	m, ok := piezo.ModelByID(DeviceID)
	require.True(t, ok)
	assert.False(t, m.SingleChannel)

	m, ok = piezo.ModelByID(DeviceID30DV)
	require.True(t, ok)
	assert.True(t, m.SingleChannel)
}
