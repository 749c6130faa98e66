// Package watchdog implements the Liveness Watchdog (C10): detects OS
// processes tracked against a "running" node that have died without
// reporting back, and force-fails them so they become retryable.
// Grounded on the teacher's IsProcessAlive check in
// internal/engine/state.go, generalized to operate over every running
// node across loaded plans instead of a single per-station PID file,
// and built on internal/procutil's unix.Kill(pid, 0) liveness probe.
package watchdog

import (
	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/procutil"
	"github.com/re-cinq/dagline/internal/state"
)

// DeadNode describes a running node the watchdog determined has lost
// its OS process.
type DeadNode struct {
	NodeID string
	PID    int
}

// Sweep inspects every node in status running with a tracked PID and
// transitions any whose process is no longer alive to failed with a
// "process died" reason (spec §4.6 step 1, §7). Returns the nodes it
// force-failed, for the caller to log/emit events for.
func Sweep(m *state.Machine, plan *model.Plan) []DeadNode {
	var dead []DeadNode
	for nodeID, s := range plan.NodeStates {
		if s.Status != model.StatusRunning || s.PID == 0 {
			continue
		}
		if procutil.IsAlive(s.PID) {
			continue
		}
		if err := m.Transition(nodeID, model.StatusFailed, "process died"); err == nil {
			dead = append(dead, DeadNode{NodeID: nodeID, PID: s.PID})
		}
	}
	return dead
}
