// Package planner assigns pending placements to nozzles, one planning
// cycle at a time.
package planner

import (
	"strings"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine"
)

type Options struct {
	// DisableTipChanging restricts assignments to the loaded nozzle tips.
	DisableTipChanging bool
}

// A Planner returns one entry per nozzle, in nozzle order. A nil entry
// leaves that nozzle idle for the cycle. No placement is returned twice.
type Planner interface {
	Plan(nozzles []*machine.Nozzle, pending []*job.JobPlacement, opt Options) []*job.JobPlacement
}

// ByName returns the planner configured by name. An empty name selects
// Greedy.
func ByName(name string) (Planner, error) {
	switch strings.ToLower(name) {
	case "", "simple", "greedy":
		return Greedy{}, nil
	case "exhaustive", "standard":
		return Exhaustive{}, nil
	}
	return nil, errors.Newf("unknown planner %q", name)
}

func loadedCanHandle(n *machine.Nozzle, part *job.Part) bool {
	return n.NozzleTip().CanHandle(part)
}

func canHandle(n *machine.Nozzle, part *job.Part) bool {
	return n.CompatibleNozzleTip(part) != nil
}
