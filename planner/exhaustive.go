package planner

import (
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine"
)

// Exhaustive scores every combination of compatible placements across the
// nozzles and picks the one that leaves the fewest nozzles idle, then
// needs the fewest tip changes. The first best combination wins.
//
// The search is the cartesian product of each nozzle's candidates, so it
// grows exponentially with the nozzle count. Use Greedy for large jobs.
type Exhaustive struct{}

func (Exhaustive) Plan(nozzles []*machine.Nozzle, pending []*job.JobPlacement, opt Options) []*job.JobPlacement {
	candidates := make([][]*job.JobPlacement, len(nozzles))
	for i, n := range nozzles {
		for _, jp := range pending {
			ok := canHandle(n, jp.Part)
			if opt.DisableTipChanging {
				ok = loadedCanHandle(n, jp.Part)
			}
			if ok {
				candidates[i] = append(candidates[i], jp)
			}
		}
		candidates[i] = append(candidates[i], nil)
	}

	var (
		best              []*job.JobPlacement
		bestIdle, bestChg int
	)
	cur := make([]*job.JobPlacement, len(nozzles))
	used := make(map[*job.JobPlacement]bool)

	var walk func(i int)
	walk = func(i int) {
		if i == len(nozzles) {
			idle, chg := score(nozzles, cur)
			if best == nil || idle < bestIdle || (idle == bestIdle && chg < bestChg) {
				best = append([]*job.JobPlacement(nil), cur...)
				bestIdle, bestChg = idle, chg
			}
			return
		}
		for _, jp := range candidates[i] {
			if jp != nil {
				if used[jp] {
					continue
				}
				used[jp] = true
			}
			cur[i] = jp
			walk(i + 1)
			if jp != nil {
				used[jp] = false
			}
		}
	}
	walk(0)

	if best == nil {
		best = make([]*job.JobPlacement, len(nozzles))
	}
	return best
}

// score counts idle nozzles and tip changes. A nozzle without a tip
// always counts as a change.
func score(nozzles []*machine.Nozzle, combo []*job.JobPlacement) (idle, changes int) {
	for i, jp := range combo {
		n := nozzles[i]
		if n.NozzleTip() == nil {
			changes++
		} else if jp != nil && !loadedCanHandle(n, jp.Part) {
			changes++
		}
		if jp == nil {
			idle++
		}
	}
	return idle, changes
}
