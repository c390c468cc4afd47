package machine

import (
	"context"

	"github.com/mastercactapus/gpnp/coord"
)

// A HeadMountable is something the driver can move, like a Nozzle.
type HeadMountable interface {
	ID() string
	Name() string
	Head() *Head
}

// Driver turns logical requests into machine motion and I/O.
type Driver interface {
	Home(ctx context.Context) error

	// MoveTo moves hm to l at speed (0,1]. l has no Unset axes.
	MoveTo(ctx context.Context, hm HeadMountable, l coord.Location, speed float64) error

	// Location returns the last commanded location of hm.
	Location(hm HeadMountable) coord.Location

	Pick(ctx context.Context, n *Nozzle) error
	Place(ctx context.Context, n *Nozzle) error

	Actuate(ctx context.Context, a *Actuator, on bool) error
	ActuatorRead(ctx context.Context, a *Actuator) (string, error)
}
