package lifecycle

import (
	"fmt"

	"github.com/re-cinq/dagline/internal/events"
	"github.com/re-cinq/dagline/internal/gitgw"
	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/state"
)

// RetryOptions carries an optional new spec per phase and the
// clearWorktree flag (spec §4.9).
type RetryOptions struct {
	NewPrechecks  *model.PhaseSpec
	NewWork       *model.PhaseSpec
	NewPostchecks *model.PhaseSpec
	ClearWorktree bool
}

func (o RetryOptions) hasNewSpec() bool {
	return o.NewPrechecks != nil || o.NewWork != nil || o.NewPostchecks != nil
}

// Retry re-arms a failed node for another attempt (spec §4.9). It never
// starts the attempt itself — it only decides where the next attempt
// should resume from, writes any new spec, optionally clears the
// worktree, and transitions the node back to ready/pending so the pump
// picks it up on its next tick.
func (l *Lifecycle) Retry(repo *gitgw.Repo, planID, nodeID string, opts RetryOptions) error {
	plan, err := l.store.ReadPlanMetadata(planID)
	if err != nil {
		return err
	}
	s := plan.NodeStates[nodeID]
	if s == nil {
		return fmt.Errorf("unknown node %q", nodeID)
	}
	if s.Status != model.StatusFailed {
		return fmt.Errorf("node %q is %s, not failed — only failed nodes are retryable", nodeID, s.Status)
	}

	if opts.ClearWorktree {
		if err := l.refuseIfDependencyIntegrated(plan, nodeID); err != nil {
			return err
		}
	}

	node, ok := plan.NodesByID()[nodeID]
	if !ok {
		return fmt.Errorf("node %q missing from plan spec", nodeID)
	}

	resumeFrom := l.resumePhase(s, node, opts)

	if err := l.writeRetrySpecs(plan.ID, node, opts); err != nil {
		return err
	}

	if opts.ClearWorktree && s.WorktreePath != "" && repo != nil {
		if err := repo.Fetch("origin"); err != nil {
			l.log.Warn().Str("node", nodeID).Err(err).Msg("fetch before clearWorktree failed; continuing with local refs")
		}
		if err := repo.ResetHardIn(s.WorktreePath, s.BaseCommit); err != nil {
			return fmt.Errorf("resetting worktree for node %s: %w", nodeID, err)
		}
		if err := repo.CleanUntrackedIn(s.WorktreePath); err != nil {
			return fmt.Errorf("cleaning worktree for node %s: %w", nodeID, err)
		}
	}

	s.ResumeFromPhase = resumeFrom
	s.ForceFailed = false
	// attempts is bumped by the executor when it next starts, never here.

	m := state.New(plan)
	s.Status = model.StatusPending
	s.EndedAt = nil
	s.Bump()
	plan.Bump()
	if m.AreDependenciesMet(nodeID) {
		s.Status = model.StatusReady
		s.Bump()
		plan.Bump()
	}

	// Persist immediately so a crash between this transition and the
	// pump's next tick cannot leave the node stuck at pending (§4.9).
	if err := l.store.WritePlanMetadata(plan); err != nil {
		return err
	}
	l.publish(events.Event{Type: events.NodeRetry, PlanID: plan.ID, NodeID: nodeID, Reason: string(resumeFrom)})
	return nil
}

// refuseIfDependencyIntegrated implements: "clearWorktree is refused if
// any upstream dependency has a completedCommit that has already been
// merged in" — i.e. this node already consumed it via forward
// integration.
func (l *Lifecycle) refuseIfDependencyIntegrated(plan *model.Plan, nodeID string) error {
	m := state.New(plan)
	for _, dep := range m.DependsOn(nodeID) {
		ds := plan.NodeStates[dep]
		if ds == nil {
			continue
		}
		if ds.CompletedCommit != "" && ds.ConsumedByDependents[nodeID] {
			return fmt.Errorf("clearWorktree refused: dependency %q's work is already merged into node %q", dep, nodeID)
		}
	}
	return nil
}

// resumePhase implements the phase-selection rules of spec §4.9.
func (l *Lifecycle) resumePhase(s *model.NodeExecutionState, node model.NodeSpec, opts RetryOptions) model.Phase {
	if opts.NewPrechecks != nil || opts.NewWork != nil || opts.ClearWorktree {
		return phaseOrderFor(opts)
	}

	failedPhase := lastFailedPhase(s)
	if opts.NewPostchecks != nil && failedPhase == model.PhasePostchecks {
		return model.PhasePostchecks
	}
	if failedPhase != "" {
		return failedPhase
	}
	return model.PhasePrechecks
}

// phaseOrderFor returns the phase to restart from when a new spec (or
// clearWorktree) forces a restart: the earliest of prechecks/work/
// postchecks that actually changed, defaulting to prechecks when
// clearWorktree alone was requested (the whole worktree is rebuilt, so
// every phase must re-run).
func phaseOrderFor(opts RetryOptions) model.Phase {
	if opts.ClearWorktree || opts.NewPrechecks != nil {
		return model.PhasePrechecks
	}
	if opts.NewWork != nil {
		return model.PhaseWork
	}
	return model.PhasePostchecks
}

func (l *Lifecycle) writeRetrySpecs(planID string, node model.NodeSpec, opts RetryOptions) error {
	specs := map[model.Phase]*model.PhaseSpec{}
	if opts.NewPrechecks != nil {
		specs[model.PhasePrechecks] = opts.NewPrechecks
	}
	if opts.NewWork != nil {
		specs[model.PhaseWork] = opts.NewWork
	}
	if opts.NewPostchecks != nil {
		specs[model.PhasePostchecks] = opts.NewPostchecks
	}
	for phase, spec := range specs {
		if err := l.store.WriteNodeSpec(planID, node.ID, phase, spec); err != nil {
			return fmt.Errorf("writing retry spec for %s: %w", phase, err)
		}
	}
	return nil
}

// lastFailedPhase returns the phase whose recorded outcome is failed,
// preferring the latest attempt's record when PhaseStatuses itself
// doesn't carry one (e.g. the failure happened at merge-ri, which is
// tracked outside PhaseStatuses).
func lastFailedPhase(s *model.NodeExecutionState) model.Phase {
	for _, p := range []model.Phase{model.PhasePostchecks, model.PhaseCommit, model.PhaseWork, model.PhasePrechecks} {
		if s.PhaseStatuses[p] == model.PhaseFailed {
			return p
		}
	}
	if len(s.AttemptHistory) > 0 {
		last := s.AttemptHistory[len(s.AttemptHistory)-1]
		if last.FailedPhase != "" {
			return last.FailedPhase
		}
	}
	return ""
}
