package executor

import (
	"fmt"
	"strings"

	"github.com/re-cinq/dagline/internal/gitgw"
	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/resolver"
	"github.com/re-cinq/dagline/internal/state"
)

// forwardIntegrate prepares nodeID's worktree from its ordered
// dependency commits (spec §4.4(b)): fresh from the first dependency
// (or the plan's base branch for a root) on a first attempt, reused
// with baseCommit preserved on retry (I3), with every additional
// dependency merged in as a true (non-squash) merge, conflicts
// delegated to the Conflict Resolver.
func (e *Executor) forwardIntegrate(m *state.Machine, ac *attemptCtx, node model.NodeSpec) error {
	s := ac.plan.NodeStates[node.ID]
	deps := m.GetBaseCommitsForNode(node.ID)

	startPoint := ac.plan.Spec.BaseBranch
	var additional []string
	if len(deps) > 0 {
		startPoint = deps[0]
		additional = deps[1:]
	}

	if len(deps) > 0 && e.upstreamCommitsAllSkipped(s.BaseCommit, deps) {
		e.acknowledgeConsumption(ac, node)
		ac.baseCommit = s.BaseCommit
		ac.completedCommit = s.BaseCommit
		ac.worktreePath = s.WorktreePath
		ac.skippedByMarker = true
		if s.PhaseStatuses == nil {
			s.PhaseStatuses = make(map[model.Phase]model.PhaseOutcome)
		}
		for _, p := range phaseOrder {
			s.PhaseStatuses[p] = model.PhaseSkipped
		}
		s.Bump()
		return nil
	}

	ac.consumedDepCommits = deps

	wtPath := worktreePath(e.cfg.WorktreeRoot, node.ID)
	result, err := e.repo.CreateOrReuseDetached(wtPath, startPoint)
	if err != nil {
		return fmt.Errorf("creating worktree: %w", err)
	}
	ac.worktreePath = wtPath
	s.WorktreePath = wtPath

	if s.BaseCommit == "" {
		s.BaseCommit = result.BaseCommit
	}
	ac.baseCommit = s.BaseCommit

	for _, sourceCommit := range additional {
		mergeResult := e.repo.Merge(sourceCommit, wtPath, gitgw.MergeOptions{
			Message: gitMergeOptsMessage(node.Name),
		})
		if mergeResult.Success {
			continue
		}
		if !mergeResult.HasConflicts {
			return fmt.Errorf("FI merge of %s failed: %s", sourceCommit, mergeResult.Error)
		}

		res := e.resolve.Resolve(resolver.Request{
			WorkDir:       wtPath,
			ConflictFiles: mergeResult.ConflictFiles,
			Prefer:        e.cfg.MergePrefer,
			NodeID:        node.ID,
			NodeName:      node.Name,
			PhaseLabel:    string(model.PhaseMergeFI),
		})
		recordMetrics(ac, "merge-fi", res.Metrics)
		if !res.Success {
			return fmt.Errorf("FI conflict resolution failed for %s: %s", sourceCommit, res.Error)
		}
	}

	e.acknowledgeConsumption(ac, node)
	return nil
}

func gitMergeOptsMessage(nodeName string) string {
	return fmt.Sprintf("dagline: FI merge into %s", nodeName)
}

// acknowledgeConsumption marks nodeID as having consumed each of its
// dependencies' output, tracked on the dependency's own execution
// state (spec §4.4(b), §4.5).
func (e *Executor) acknowledgeConsumption(ac *attemptCtx, node model.NodeSpec) {
	for _, dep := range node.DependsOn {
		ds := ac.plan.NodeStates[dep]
		if ds == nil {
			continue
		}
		if ds.ConsumedByDependents == nil {
			ds.ConsumedByDependents = make(map[string]bool)
		}
		ds.ConsumedByDependents[node.ID] = true
		ds.Bump()
	}
}

// upstreamCommitsAllSkipped generalizes the teacher's allCommitsSkipped
// (a single watched branch vs. a recorded lastSeen) across a node's
// full dependency set: true only if every commit newly introduced since
// base, across every dependency tip, carries a recognized skip marker.
// base == "" means this worktree has never been built before, so there
// is nothing yet to compare a skip range against.
func (e *Executor) upstreamCommitsAllSkipped(base string, deps []string) bool {
	if base == "" {
		return false
	}
	anyCommits := false
	for _, dep := range deps {
		commits, err := e.repo.CommitsBetween(base, dep)
		if err != nil {
			return false
		}
		for _, hash := range commits {
			msg, err := e.repo.CommitMessage(hash)
			if err != nil {
				return false
			}
			if !hasSkipMarker(msg) {
				return false
			}
			anyCommits = true
		}
	}
	return anyCommits
}

// hasSkipMarker checks a commit message for a recognized skip marker,
// carried over from the teacher's hasSkipMarker plus dagline's own.
func hasSkipMarker(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "[skip ci]") ||
		strings.Contains(lower, "[ci skip]") ||
		strings.Contains(lower, "[skip dagline]") ||
		strings.Contains(lower, "[dagline skip]")
}
