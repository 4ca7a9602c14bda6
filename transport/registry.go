package transport

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// Driver constructs transports of one kind and enumerates candidate links
// for discovery.
//
// Drivers register themselves explicitly via Register, once at process start.
// There is no implicit registration hook; an application that never calls a
// driver's Register helper simply cannot construct that kind.
type Driver interface {
	// Kind returns the transport kind tag this driver serves.
	Kind() Type

	// Open constructs an unconnected Transport for the given identifier.
	Open(identifier string) Transport

	// Enumerate lists candidate identifiers for discovery, in enumeration
	// order (e.g. attached serial adapters, or a configured address range).
	Enumerate(ctx context.Context) ([]string, error)
}

var registry = xsync.NewMapOf[Type, Driver]()

// Register makes a driver available to New and Discover. Registering a
// second driver for the same kind replaces the first.
func Register(drv Driver) {
	registry.Store(drv.Kind(), drv)
}

// New constructs an unconnected Transport of the given kind.
// It returns ErrUnsupportedTransport if no driver is registered for kind.
func New(kind Type, identifier string) (Transport, error) {
	drv, ok := registry.Load(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, kind)
	}

	return drv.Open(identifier), nil
}

// registeredDrivers snapshots the registry for discovery iteration.
func registeredDrivers() []Driver {
	drivers := make([]Driver, 0, registry.Size())
	registry.Range(func(_ Type, drv Driver) bool {
		drivers = append(drivers, drv)
		return true
	})

	return drivers
}
