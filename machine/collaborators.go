package machine

import (
	"context"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/job"
)

// Feeder supplies parts to nozzles.
type Feeder interface {
	ID() string
	Name() string
	PartID() string

	Enabled() bool
	SetEnabled(bool)

	// Feed prepares the next part for pickup by n.
	Feed(ctx context.Context, n *Nozzle) error

	// PickLocation is where the fed part can be picked.
	PickLocation() (coord.Location, error)

	// PostPick is called after a successful pick.
	PostPick(ctx context.Context, n *Nozzle) error

	RetryCount() int
	PickRetryCount() int
	AlignRetryCount() int

	// AutoSkipPick requests an automatic skip when feeding or picking
	// fails.
	AutoSkipPick() bool

	// AutoSkipAlign requests an automatic skip when alignment fails.
	AutoSkipAlign() bool
}

// PartAlignmentOffset is the measured offset of a part on a nozzle.
type PartAlignmentOffset struct {
	Location coord.Location

	// PreRotated offsets already include the final placement rotation.
	PreRotated bool
}

// PartAligner measures how a part sits on a nozzle.
type PartAligner interface {
	FindOffsets(ctx context.Context, part *job.Part, bl *job.BoardLocation, placement coord.Location, n *Nozzle) (*PartAlignmentOffset, error)
}

// FiducialLocator finds a board's true position from its fiducials.
type FiducialLocator interface {
	LocateBoard(ctx context.Context, bl *job.BoardLocation, checkFiducialsOnly bool) (*coord.Affine, error)
}

// Hooks receives named lifecycle events. Errors are only logged.
type Hooks interface {
	On(event string, vars map[string]interface{}) error
}

// NozzleTipCalibrator measures the runout of the tip mounted on n.
type NozzleTipCalibrator interface {
	Calibrate(ctx context.Context, n *Nozzle, tip *NozzleTip) (RunoutCompensation, error)
}
