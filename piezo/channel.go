package piezo

import "context"

// Channel is one addressable sub-unit of a device, e.g. a single amplifier
// module in a modular rack. Channels are created by Connect during channel
// discovery; the channel id is appended to every command the channel issues
// (except on single-channel models).
type Channel struct {
	id  int
	dev *Device
}

// ID returns the channel id.
func (ch *Channel) ID() int { return ch.id }

// Device returns the session this channel belongs to.
func (ch *Channel) Device() *Device { return ch.dev }

// Read reads the current value of the channel-addressed command cmd.
func (ch *Channel) Read(ctx context.Context, cmd string) ([]string, error) {
	return ch.dev.Read(ctx, ch.dev.channelCommand(cmd, ch.id))
}

// Write writes params to the channel-addressed command cmd. With no params
// it behaves exactly like Read.
func (ch *Channel) Write(ctx context.Context, cmd string, params ...any) ([]string, error) {
	return ch.dev.Write(ctx, ch.dev.channelCommand(cmd, ch.id), params...)
}
