package planner

import (
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine"
)

// Greedy fills each nozzle in turn with the first placement its loaded
// tip can handle, falling back to one that needs a tip change. It does
// not optimize, but it stays linear on large jobs.
type Greedy struct{}

func (Greedy) Plan(nozzles []*machine.Nozzle, pending []*job.JobPlacement, opt Options) []*job.JobPlacement {
	remaining := make([]*job.JobPlacement, len(pending))
	copy(remaining, pending)

	take := func(match func(*job.JobPlacement) bool) *job.JobPlacement {
		for i, jp := range remaining {
			if match(jp) {
				remaining = append(remaining[:i], remaining[i+1:]...)
				return jp
			}
		}
		return nil
	}

	res := make([]*job.JobPlacement, len(nozzles))
	for i, n := range nozzles {
		res[i] = take(func(jp *job.JobPlacement) bool { return loadedCanHandle(n, jp.Part) })
		if res[i] != nil || opt.DisableTipChanging {
			continue
		}
		res[i] = take(func(jp *job.JobPlacement) bool { return canHandle(n, jp.Part) })
	}
	return res
}
