package transport

import (
	"context"
	"sync"

	"github.com/arloliu/go-piezo/logger"
)

// DiscoverFlags configures the behavior of Discover.
// Flags combine with the bitwise OR operator.
type DiscoverFlags uint8

const (
	// DetectSerial enables scanning of locally attached serial adapters.
	DetectSerial DiscoverFlags = 1 << iota
	// DetectTelnet enables scanning of the configured network address range.
	DetectTelnet
	// AdjustCommParams asks trial transports to auto-tune link flow-control
	// parameters during connect. This can add noticeable time per candidate.
	AdjustCommParams

	// AllInterfaces scans every transport kind without touching comm params.
	AllInterfaces = DetectSerial | DetectTelnet
	// All scans every transport kind and adjusts comm params.
	All = AllInterfaces | AdjustCommParams
)

// flagForType maps a transport kind to the flag that enables its scan.
func flagForType(t Type) DiscoverFlags {
	switch t {
	case Serial:
		return DetectSerial
	case Telnet:
		return DetectTelnet
	default:
		return 0
	}
}

// ProbeFunc is the device-type probe run against each connected candidate.
//
// It returns the resolved device ID for a matching device, or an empty string
// when the peer is reachable but not a matching device. Errors (including
// read timeouts on silent peers) mean "not a match" for that candidate.
type ProbeFunc func(ctx context.Context, tp Transport) (deviceID string, err error)

// Discover concurrently enumerates candidate links across every registered
// transport kind enabled by flags, probes each candidate, and returns the
// descriptors of all candidates that passed the probe.
//
// All kinds scan concurrently with each other, and all candidates within a
// kind scan concurrently with each other. Per-candidate failures are logged
// and suppressed; they never abort the scan. Every trial transport is closed
// before Discover returns, whether or not its probe succeeded. Order within
// one kind follows enumeration order; order across kinds is unspecified.
//
// Cancelling ctx aborts outstanding probes; partial results gathered so far
// are still returned along with ctx.Err().
func Discover(ctx context.Context, flags DiscoverFlags, probe ProbeFunc) ([]DetectedDevice, error) {
	log := logger.GetLogger()
	adjust := flags&AdjustCommParams != 0

	var (
		mu      sync.Mutex
		devices []DetectedDevice
		wg      sync.WaitGroup
	)

	for _, drv := range registeredDrivers() {
		if flags&flagForType(drv.Kind()) == 0 {
			continue
		}

		wg.Add(1)
		go func(drv Driver) {
			defer wg.Done()

			found := discoverKind(ctx, drv, adjust, probe, log)

			mu.Lock()
			devices = append(devices, found...)
			mu.Unlock()
		}(drv)
	}

	wg.Wait()

	return devices, ctx.Err()
}

// discoverKind enumerates and probes all candidates of one driver. Results
// keep enumeration order: candidate i lands in slot i and empty slots are
// compacted after the join.
func discoverKind(ctx context.Context, drv Driver, adjust bool, probe ProbeFunc, log logger.Logger) []DetectedDevice {
	candidates, err := drv.Enumerate(ctx)
	if err != nil {
		log.Warn("transport: candidate enumeration failed", "kind", drv.Kind(), "error", err)

		return nil
	}

	slots := make([]*DetectedDevice, len(candidates))

	var wg sync.WaitGroup
	for i, id := range candidates {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			slots[i] = probeCandidate(ctx, drv, id, adjust, probe, log)
		}(i, id)
	}
	wg.Wait()

	found := make([]DetectedDevice, 0, len(candidates))
	for _, dev := range slots {
		if dev != nil {
			found = append(found, *dev)
		}
	}

	return found
}

// probeCandidate opens a trial transport, runs the probe, and always closes
// the transport afterwards. It returns nil when the candidate is not a
// matching device for any reason.
func probeCandidate(ctx context.Context, drv Driver, id string, adjust bool, probe ProbeFunc, log logger.Logger) *DetectedDevice {
	tp := drv.Open(id)
	defer func() {
		if err := tp.Close(); err != nil {
			log.Warn("transport: failed to close trial transport", "kind", drv.Kind(), "identifier", id, "error", err)
		}
	}()

	if err := tp.Connect(ctx, adjust); err != nil {
		log.Debug("transport: candidate connect failed", "kind", drv.Kind(), "identifier", id, "error", err)

		return nil
	}

	deviceID, err := probe(ctx, tp)
	if err != nil {
		log.Debug("transport: candidate probe failed", "kind", drv.Kind(), "identifier", id, "error", err)

		return nil
	}

	if deviceID == "" {
		return nil
	}

	return &DetectedDevice{Info: tp.Info(), DeviceID: deviceID}
}
