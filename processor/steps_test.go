package processor

import (
	"testing"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/machine/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignedLocation(t *testing.T) {
	l := coord.Location{X: 110, Y: 55, Z: -10, Rotation: 90}

	res := alignedLocation(l, machine.PartAlignmentOffset{Location: coord.Location{X: 1}})
	assert.InDelta(t, 110, res.X, 1e-9)
	assert.InDelta(t, 54, res.Y, 1e-9)
	assert.Equal(t, -10.0, res.Z)
	assert.Equal(t, 90.0, res.Rotation)

	res = alignedLocation(l, machine.PartAlignmentOffset{
		Location:   coord.Location{X: 1, Y: 2, Rotation: 5},
		PreRotated: true,
	})
	assert.Equal(t, coord.Location{X: 109, Y: 53, Z: -10, Rotation: 85}, res)
}

func TestRetry(t *testing.T) {
	var n int
	err := retry(3, func() error {
		n++
		if n < 2 {
			return errors.New("fail")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	n = 0
	err = retry(3, func() error { n++; return errors.Newf("fail %d", n) })
	assert.EqualError(t, err, "fail 3")
	assert.Equal(t, 3, n)
}

type countSaver struct{ n int }

func (c *countSaver) SaveConfig() error { c.n++; return nil }

func TestProcessor_SaveConfig_Throttle(t *testing.T) {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	cs := &countSaver{}
	p, err := New(machine.NewMachine(sim.NewDriver()), job.PartLibrary{}, Options{
		Config:      DefaultConfig(),
		ConfigSaver: cs,
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)

	p.saveJobAndConfig(true)
	assert.Equal(t, 1, cs.n)

	now = now.Add(time.Minute)
	p.saveJobAndConfig(false)
	assert.Equal(t, 1, cs.n)

	p.saveJobAndConfig(true)
	assert.Equal(t, 2, cs.n)

	now = now.Add(11 * time.Minute)
	p.saveJobAndConfig(false)
	assert.Equal(t, 3, cs.n)

	p.cfg.AutoSaveConfiguration = false
	p.saveJobAndConfig(true)
	assert.Equal(t, 3, cs.n)
}

func TestProcessor_SortedPending(t *testing.T) {
	tall := &job.Part{ID: "A", Height: 2}
	short := &job.Part{ID: "B", Height: 1}
	bl := &job.BoardLocation{Board: &job.Board{Name: "B1"}}
	p1 := job.NewJobPlacement(bl, &job.Placement{ID: "P1"}, tall)
	p2 := job.NewJobPlacement(bl, &job.Placement{ID: "P2"}, short)
	p3 := job.NewJobPlacement(bl, &job.Placement{ID: "P3"}, tall)

	p := &Processor{cfg: DefaultConfig(), jobPlacements: []*job.JobPlacement{p1, p2, p3}}
	assert.Equal(t, []*job.JobPlacement{p2, p1, p3}, p.sortedPending())

	p.cfg.JobOrder = JobOrderPart
	assert.Equal(t, []*job.JobPlacement{p1, p3, p2}, p.sortedPending())
}
