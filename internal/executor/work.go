package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/store"
)

// phaseOrder is the sequence of user-configured phases the Node
// Executor dispatches in order; "commit" is interleaved after "work"
// but is never itself user-configured (spec §4.4(c)/(e)).
var phaseOrder = []model.Phase{model.PhasePrechecks, model.PhaseWork, model.PhasePostchecks}

// runPhases dispatches each configured phase in order, skipping any
// phase before s.ResumeFromPhase (retry/auto-heal resumption — the
// earlier phase's recorded status is preserved rather than re-run).
// A node resuming from merge-ri with a recorded CompletedCommit runs no
// phase and carries that commit forward to RI; any other resume point
// outside prechecks/work/postchecks runs every phase.
// Returns the failed phase (empty on success).
func (e *Executor) runPhases(ctx context.Context, ac *attemptCtx, node model.NodeSpec) (model.Phase, error) {
	s := ac.plan.NodeStates[node.ID]
	if s.PhaseStatuses == nil {
		s.PhaseStatuses = make(map[model.Phase]model.PhaseOutcome)
	}

	if s.ResumeFromPhase == model.PhaseMergeRI && s.CompletedCommit != "" {
		ac.completedCommit = s.CompletedCommit
		return "", nil
	}

	resumeIdx := 0
	if s.ResumeFromPhase != "" {
		for i, p := range phaseOrder {
			if p == s.ResumeFromPhase {
				resumeIdx = i
				break
			}
		}
	}

	logFile, err := e.store.OpenExecutionLogAppend(ac.plan.ID, node.ID)
	if err != nil {
		return "", fmt.Errorf("opening execution log: %w", err)
	}
	defer logFile.Close()

	for i, phase := range phaseOrder {
		if i < resumeIdx {
			continue
		}

		spec, err := e.store.ReadNodeSpec(ac.plan.ID, node.ID, phase)
		if errors.Is(err, store.ErrNotFound) {
			s.PhaseStatuses[phase] = model.PhaseSkipped
			continue
		}
		if err != nil {
			return phase, fmt.Errorf("reading %s spec: %w", phase, err)
		}

		outcome, exitCode, healErr := e.runPhaseWithHeal(ctx, ac, node, phase, spec, logFile)
		s.PhaseStatuses[phase] = outcome
		s.Bump()
		if outcome == model.PhaseFailed {
			ac.exitCode = exitCode
			return phase, healErr
		}

		if phase == model.PhaseWork {
			if err := e.commitStep(ac, node, logFile); err != nil {
				return model.PhaseCommit, err
			}
		}
	}

	if ac.completedCommit == "" {
		ac.completedCommit = ac.baseCommit
	}
	return "", nil
}

// commitStep runs after a successful work phase (spec §4.4(e)): if the
// worktree has no changes (or the node declares expectsNoChanges), the
// node produced no change and carries its base commit forward;
// otherwise it stages and commits everything.
func (e *Executor) commitStep(ac *attemptCtx, node model.NodeSpec, logFile io.Writer) error {
	s := ac.plan.NodeStates[node.ID]

	if node.ExpectsNoChanges {
		ac.completedCommit = ac.baseCommit
		s.PhaseStatuses[model.PhaseCommit] = model.PhaseSkipped
		e.noteReviewedNoChange(ac, node)
		return nil
	}

	changed, err := e.repo.HasChanges(ac.worktreePath)
	if err != nil {
		return fmt.Errorf("checking worktree changes: %w", err)
	}
	if !changed {
		ac.completedCommit = ac.baseCommit
		s.PhaseStatuses[model.PhaseCommit] = model.PhaseSkipped
		e.noteReviewedNoChange(ac, node)
		return nil
	}

	if err := e.repo.StageAll(ac.worktreePath); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	msg := fmt.Sprintf("dagline: %s (attempt %d)", node.Name, ac.attempt)
	if err := e.repo.Commit(ac.worktreePath, msg); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	head, err := e.repo.HeadCommitIn(ac.worktreePath)
	if err != nil {
		return fmt.Errorf("resolving new commit: %w", err)
	}
	ac.completedCommit = head
	s.PhaseStatuses[model.PhaseCommit] = model.PhaseSuccess
	fmt.Fprintf(logFile, "committed %s: %s\n", head, msg)
	return nil
}

// noteReviewedNoChange leaves a "reviewed, no changes needed" git note
// on each dependency commit this attempt's FI folded in, carried over
// from the teacher's own no-op audit trail: the work phase looked at
// what changed upstream and decided nothing needed doing.
func (e *Executor) noteReviewedNoChange(ac *attemptCtx, node model.NodeSpec) {
	if len(ac.consumedDepCommits) == 0 {
		return
	}
	msg := fmt.Sprintf("[%s] reviewed, no changes needed", strings.ToUpper(node.Name))
	for _, hash := range ac.consumedDepCommits {
		if err := e.repo.AddNote(hash, msg); err != nil {
			e.log.Warn().Str("node", node.ID).Str("commit", hash).Err(err).Msg("adding no-op audit note")
		}
	}
}
