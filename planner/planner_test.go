package planner

import (
	"fmt"
	"testing"

	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	small = &job.Part{ID: "R1K", PackageID: "0603", Height: 0.5}
	large = &job.Part{ID: "U1", PackageID: "SOIC8", Height: 1.5}

	tipSmall = &machine.NozzleTip{ID: "NT503", Packages: []string{"0603"}}
	tipLarge = &machine.NozzleTip{ID: "NT505", Packages: []string{"SOIC8"}}
)

func nozzle(id string, loaded *machine.NozzleTip, tips ...*machine.NozzleTip) *machine.Nozzle {
	n := machine.NewNozzle(id, id)
	for _, t := range tips {
		n.AttachNozzleTip(t)
	}
	n.SetNozzleTip(loaded)
	return n
}

func placements(parts ...*job.Part) []*job.JobPlacement {
	bl := &job.BoardLocation{Board: &job.Board{Name: "b"}}
	res := make([]*job.JobPlacement, len(parts))
	for i, p := range parts {
		res[i] = job.NewJobPlacement(bl, &job.Placement{ID: fmt.Sprintf("P%d", i+1), PartID: p.ID}, p)
	}
	return res
}

func assertNoDuplicates(t *testing.T, res []*job.JobPlacement) {
	t.Helper()
	seen := make(map[*job.JobPlacement]bool)
	for _, jp := range res {
		if jp == nil {
			continue
		}
		assert.False(t, seen[jp], "placement %s assigned twice", jp)
		seen[jp] = true
	}
}

func TestByName(t *testing.T) {
	for name, expected := range map[string]Planner{
		"":           Greedy{},
		"Simple":     Greedy{},
		"greedy":     Greedy{},
		"Exhaustive": Exhaustive{},
	} {
		p, err := ByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, p, name)
	}

	_, err := ByName("clever")
	assert.Error(t, err)
}

func TestPlanners(t *testing.T) {
	for _, p := range []Planner{Greedy{}, Exhaustive{}} {
		t.Run(fmt.Sprintf("%T", p), func(t *testing.T) {
			t.Run("LoadedTipFirst", func(t *testing.T) {
				n1 := nozzle("N1", tipSmall, tipSmall, tipLarge)
				n2 := nozzle("N2", tipLarge, tipSmall, tipLarge)
				jps := placements(large, small, small)

				res := p.Plan([]*machine.Nozzle{n1, n2}, jps, Options{})
				require.Len(t, res, 2)
				assert.Equal(t, jps[1], res[0])
				assert.Equal(t, jps[0], res[1])
			})

			t.Run("NoDuplicates", func(t *testing.T) {
				n1 := nozzle("N1", tipSmall, tipSmall)
				n2 := nozzle("N2", tipSmall, tipSmall)
				n3 := nozzle("N3", tipSmall, tipSmall)
				jps := placements(small, small)

				res := p.Plan([]*machine.Nozzle{n1, n2, n3}, jps, Options{})
				require.Len(t, res, 3)
				assertNoDuplicates(t, res)
				assert.Nil(t, res[2])
			})

			t.Run("TipChange", func(t *testing.T) {
				n1 := nozzle("N1", tipSmall, tipSmall, tipLarge)
				jps := placements(large)

				res := p.Plan([]*machine.Nozzle{n1}, jps, Options{})
				assert.Equal(t, []*job.JobPlacement{jps[0]}, res)

				res = p.Plan([]*machine.Nozzle{n1}, jps, Options{DisableTipChanging: true})
				assert.Equal(t, []*job.JobPlacement{nil}, res)
			})

			t.Run("Incompatible", func(t *testing.T) {
				n1 := nozzle("N1", tipSmall, tipSmall)
				res := p.Plan([]*machine.Nozzle{n1}, placements(large), Options{})
				assert.Equal(t, []*job.JobPlacement{nil}, res)
			})

			t.Run("Idempotent", func(t *testing.T) {
				n1 := nozzle("N1", tipSmall, tipSmall, tipLarge)
				n2 := nozzle("N2", nil, tipSmall, tipLarge)
				jps := placements(small, large, small, large)
				nozzles := []*machine.Nozzle{n1, n2}

				first := p.Plan(nozzles, jps, Options{})
				assert.Equal(t, first, p.Plan(nozzles, jps, Options{}))
				assertNoDuplicates(t, first)
				assert.Len(t, jps, 4)
			})
		})
	}
}

func TestExhaustive_FewestIdle(t *testing.T) {
	// Greedy hands N1 the only part N2 could take, leaving N2 idle.
	n1 := nozzle("N1", nil, tipSmall, tipLarge)
	n2 := nozzle("N2", tipLarge, tipLarge)
	jps := placements(large, small)
	nozzles := []*machine.Nozzle{n1, n2}

	res := Greedy{}.Plan(nozzles, jps, Options{})
	assert.Equal(t, []*job.JobPlacement{jps[0], nil}, res)

	res = Exhaustive{}.Plan(nozzles, jps, Options{})
	assert.Equal(t, []*job.JobPlacement{jps[1], jps[0]}, res)
}

func TestExhaustive_FewestChanges(t *testing.T) {
	n1 := nozzle("N1", tipLarge, tipSmall, tipLarge)
	n2 := nozzle("N2", tipSmall, tipSmall, tipLarge)
	jps := placements(small, large)

	res := Exhaustive{}.Plan([]*machine.Nozzle{n1, n2}, jps, Options{})
	assert.Equal(t, []*job.JobPlacement{jps[1], jps[0]}, res)
}
