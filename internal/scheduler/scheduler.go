// Package scheduler implements the Scheduler (C6): a pure, stateless
// selector from (plan, state machine, capacity) to the set of node IDs
// to dispatch this tick. No package state, no I/O — grounded on spec
// §4.3's five-step algorithm.
package scheduler

import (
	"sort"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/state"
)

// Select returns the node IDs to dispatch this tick, given the plan's
// maxParallel, the count of work-performing nodes already
// running+scheduled for this plan, the global max, and the global
// running+scheduled count across all plans (spec §4.3).
func Select(plan *model.Plan, m *state.Machine, planRunning, globalMax, globalRunning int) []string {
	ready := m.GetReadyNodes()
	if len(ready) == 0 {
		return nil
	}

	planMax := plan.Spec.MaxParallel
	available := planMax - planRunning
	if g := globalMax - globalRunning; g < available {
		available = g
	}
	if available <= 0 {
		return nil
	}

	byID := plan.NodesByID()
	sort.Slice(ready, func(i, j int) bool {
		ni, nj := byID[ready[i]], byID[ready[j]]
		di, dj := len(m.Dependents(ready[i])), len(m.Dependents(ready[j]))
		if di != dj {
			return di > dj // more dependents first — bottlenecks prioritized
		}
		return ni.Name < nj.Name // deterministic tie-break
	})

	if len(ready) > available {
		ready = ready[:available]
	}
	return ready
}

// IsWorkPerforming reports whether a node consumes a capacity slot —
// coordination nodes do not (spec §4.3 step 2).
func IsWorkPerforming(n model.NodeSpec) bool {
	return n.Kind == model.NodeJob
}
