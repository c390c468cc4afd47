package feeder

import (
	"context"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
)

// Static presents parts at a fixed location, like a strip the operator
// advances by hand.
type Static struct {
	*Base
	Location coord.Location
}

var _ machine.Feeder = &Static{}

func NewStatic(cfg Config, l coord.Location) *Static {
	return &Static{Base: NewBase(cfg), Location: l}
}

func (s *Static) Feed(ctx context.Context, n *machine.Nozzle) error { return nil }

func (s *Static) PickLocation() (coord.Location, error) { return s.Location, nil }
