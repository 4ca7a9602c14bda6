package transport

import "fmt"

// Type identifies a transport kind.
type Type string

const (
	// Serial is a locally attached serial adapter (RS-232/USB).
	Serial Type = "serial"
	// Telnet is a TCP socket, typically an XPort serial-to-ethernet bridge.
	Telnet Type = "telnet"
)

// Info describes one transport endpoint.
type Info struct {
	// Type is the transport kind.
	Type Type
	// Identifier is the serial port path or the network address ("host:port").
	Identifier string
	// MAC is the hardware address of the endpoint, when known.
	MAC string
}

func (i Info) String() string {
	if i.MAC != "" {
		return fmt.Sprintf("%s @ %s (MAC: %s)", i.Type, i.Identifier, i.MAC)
	}

	return fmt.Sprintf("%s @ %s", i.Type, i.Identifier)
}

// DetectedDevice describes a device found during discovery.
type DetectedDevice struct {
	// Info identifies how the device is reachable.
	Info Info
	// DeviceID is the device model tag resolved by the probe, e.g. "D-Drive".
	DeviceID string
	// DeviceInfo holds optional extra metadata such as actuator name or
	// serial number.
	DeviceInfo map[string]string
}

func (d DetectedDevice) String() string {
	s := d.Info.String()
	if d.DeviceID != "" {
		s += " - " + d.DeviceID
	}
	if len(d.DeviceInfo) > 0 {
		s += fmt.Sprintf(" - %v", d.DeviceInfo)
	}

	return s
}
