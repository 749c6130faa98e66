package executor

import (
	"context"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/state"
)

// RunNode drives one node end-to-end: FI, phases + auto-heal, commit,
// and (for leaves with a target branch) RI, recording one AttemptRecord
// per attempt (two when auto-heal starts a second attempt, see
// runPhaseWithHeal) and ending in a terminal or retryable failed status
// (spec §4.4). Cancellation is checked at each pre-work checkpoint
// (spec §4.4: "cooperative at the node level").
func (e *Executor) RunNode(ctx context.Context, m *state.Machine, plan *model.Plan, nodeID string, trigger model.AttemptTrigger) error {
	node := plan.NodesByID()[nodeID]

	ac, err := e.beginAttempt(m, plan, nodeID, trigger)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return e.finalize(m, ac, model.StatusCanceled, "", "canceled before start", 0)
	}

	if node.Kind == model.NodeJob {
		if err := e.forwardIntegrate(m, ac, node); err != nil {
			return e.finalize(m, ac, model.StatusFailed, model.PhaseMergeFI, err.Error(), 0)
		}
	} else {
		// Coordination nodes have no worktree and no phases: their
		// "output" is simply that every dependency succeeded.
		ac.completedCommit = ac.baseCommit
		e.acknowledgeConsumption(ac, node)
	}

	if err := ctx.Err(); err != nil {
		return e.finalize(m, ac, model.StatusCanceled, "", "canceled after FI", 0)
	}

	if node.Kind == model.NodeJob && !ac.skippedByMarker {
		failedPhase, err := e.runPhases(ctx, ac, node)
		if err != nil {
			return e.finalize(m, ac, model.StatusFailed, failedPhase, err.Error(), ac.exitCode)
		}
	}

	if ctx.Err() != nil {
		return e.finalize(m, ac, model.StatusCanceled, "", "canceled before RI", 0)
	}

	isLeaf := len(m.Dependents(nodeID)) == 0
	if isLeaf && plan.Spec.TargetBranch != "" && ac.completedCommit != "" {
		out := e.reverseIntegrate(ac, node, plan.Spec.TargetBranch, e.cfg.PushOnSuccess)
		if !out.Success {
			return e.finalize(m, ac, model.StatusFailed, model.PhaseMergeRI, out.Error, 0)
		}
		if out.Partial {
			// The commit exists but the target ref update was skipped
			// (spec §4.4(f)): MergedToTarget stays false, so
			// sweepWorktrees keeps this leaf's worktree. The node still
			// succeeds, and nothing re-runs the RI for it afterwards.
			e.log.Warn().Str("node", nodeID).Msg(out.Error)
		} else {
			plan.NodeStates[nodeID].MergedToTarget = true
		}
	}

	if err := e.finalize(m, ac, model.StatusSucceeded, "", "", 0); err != nil {
		return err
	}

	leaves := make(map[string]bool, len(plan.Leaves))
	for _, id := range plan.Leaves {
		leaves[id] = true
	}
	e.sweepWorktrees(plan, leaves)
	return nil
}
