package executor

import (
	"github.com/re-cinq/dagline/internal/model"
)

// sweepWorktrees removes any succeeded node's worktree once it is
// eligible for cleanup (spec §4.5, I5, P7): a non-leaf once every
// dependent has recorded consumption, a leaf once RI has succeeded (or
// the plan has no target branch). Only runs when cleanUpSuccessfulWork
// is configured.
func (e *Executor) sweepWorktrees(plan *model.Plan, leaves map[string]bool) {
	if !e.cfg.CleanUpSuccessfulWork {
		return
	}
	for nodeID, s := range plan.NodeStates {
		if s.Status != model.StatusSucceeded || s.WorktreePath == "" {
			continue
		}
		eligible := false
		if leaves[nodeID] {
			eligible = s.MergedToTarget || plan.Spec.TargetBranch == ""
		} else {
			eligible = len(s.ConsumedByDependents) == len(dependentsOf(plan, nodeID))
		}
		if !eligible {
			continue
		}
		if err := e.repo.RemoveSafe(s.WorktreePath); err != nil {
			e.log.Warn().Str("node", nodeID).Err(err).Msg("failed to remove eligible worktree")
			continue
		}
		s.WorktreePath = ""
		s.Bump()
	}
}

func dependentsOf(plan *model.Plan, nodeID string) []string {
	var out []string
	for _, n := range plan.Spec.Nodes {
		for _, dep := range n.DependsOn {
			if dep == nodeID {
				out = append(out, n.ID)
				break
			}
		}
	}
	return out
}
