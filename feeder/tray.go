package feeder

import (
	"context"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/machine"
)

// Tray feeds parts from a grid of pockets, row by row starting at First.
type Tray struct {
	*Base

	First  coord.Location
	Offset coord.Location

	Cols, Rows int

	mx  sync.Mutex
	fed int
}

var _ machine.Feeder = &Tray{}

func NewTray(cfg Config, first, offset coord.Location, cols, rows int) *Tray {
	return &Tray{
		Base:   NewBase(cfg),
		First:  first,
		Offset: offset,
		Cols:   cols,
		Rows:   rows,
	}
}

// FeedCount returns how many pockets have been used.
func (t *Tray) FeedCount() int {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.fed
}

// SetFeedCount restores saved progress, or refills the tray with 0.
func (t *Tray) SetFeedCount(n int) {
	t.mx.Lock()
	t.fed = n
	t.mx.Unlock()
}

func (t *Tray) capacity() int { return t.Cols * t.Rows }

// Feed advances to the next full pocket.
func (t *Tray) Feed(ctx context.Context, n *machine.Nozzle) error {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.fed >= t.capacity() {
		return errors.WithHint(
			errors.Wrapf(ErrEmpty, "tray %s", t.Name()),
			"refill the tray and reset its feed count",
		)
	}
	t.fed++
	return nil
}

// PickLocation is the pocket of the most recently fed part.
func (t *Tray) PickLocation() (coord.Location, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.fed == 0 {
		return coord.Location{}, errors.Newf("tray %s has not been fed", t.Name())
	}
	return t.pocket(t.fed - 1), nil
}

func (t *Tray) pocket(i int) coord.Location {
	col, row := i%t.Cols, i/t.Cols
	l := t.First
	l.X += float64(col) * t.Offset.X
	l.Y += float64(row) * t.Offset.Y
	return l
}
