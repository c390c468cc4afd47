package machine

import (
	"context"

	"github.com/mastercactapus/gpnp/coord"
)

// Head carries nozzles over the work area.
type Head struct {
	ID   string
	Name string

	// SafeZ is the Z height that clears every obstacle.
	SafeZ float64

	// ParkLocation is where the head rests after a job. Z is ignored.
	ParkLocation coord.Location

	Nozzles []*Nozzle

	machine *Machine
}

// AddNozzle mounts n on h.
func (h *Head) AddNozzle(n *Nozzle) {
	n.head = h
	h.Nozzles = append(h.Nozzles, n)
}

func (h *Head) Machine() *Machine { return h.machine }

// MoveToSafeZ raises every nozzle.
func (h *Head) MoveToSafeZ(ctx context.Context) error {
	for _, n := range h.Nozzles {
		err := n.MoveToSafeZ(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Park moves the first nozzle to ParkLocation at safe Z.
func (h *Head) Park(ctx context.Context) error {
	if len(h.Nozzles) == 0 {
		return nil
	}
	err := h.MoveToSafeZ(ctx)
	if err != nil {
		return err
	}
	l := h.ParkLocation
	l.Z = coord.Unset
	l.Rotation = coord.Unset
	return h.Nozzles[0].MoveTo(ctx, l, h.machine.SpeedFactor())
}

func (h *Head) fireActivity() {
	if h.machine != nil {
		h.machine.fireHeadActivity(h)
	}
}

// Camera is a fixed camera position.
type Camera struct {
	Name     string
	Location coord.Location
}
