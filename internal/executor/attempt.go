package executor

import (
	"time"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/resolver"
	"github.com/re-cinq/dagline/internal/state"
)

// attemptCtx carries the bookkeeping for one attempt from start to
// finalize: the log offset captured before anything ran (I7), the
// attempt number, and the trigger recorded on the eventual
// AttemptRecord.
type attemptCtx struct {
	plan      *model.Plan
	nodeID    string
	attempt   int
	trigger   model.AttemptTrigger
	logOffset int64
	startedAt time.Time

	workUsed        *model.PhaseSpec
	worktreePath    string
	baseCommit      string
	completedCommit string
	metrics         map[string]any
	exitCode        int

	// consumedDepCommits is the set of dependency tip commits this
	// attempt's FI folded in, kept around so commitStep can leave a
	// no-op audit note on each one if the work phase produced no diff.
	consumedDepCommits []string

	// skippedByMarker is set by forwardIntegrate when every new
	// upstream commit carried a skip marker (spec §4 supplemented
	// features): runPhases is bypassed entirely and the node succeeds
	// with completedCommit == baseCommit.
	skippedByMarker bool
}

// beginAttempt promotes the node's spec directory for this attempt,
// snapshots the offset of that attempt's log, transitions
// scheduled→running, and bumps the attempt counter (spec §4.4(a)).
func (e *Executor) beginAttempt(m *state.Machine, plan *model.Plan, nodeID string, trigger model.AttemptTrigger) (*attemptCtx, error) {
	s := plan.NodeStates[nodeID]

	attemptNum := s.Attempt + 1
	if err := e.store.SnapshotSpecsForAttempt(plan.ID, nodeID, attemptNum); err != nil {
		return nil, err
	}

	offset, err := e.store.CurrentLogOffset(plan.ID, nodeID)
	if err != nil {
		return nil, err
	}

	if err := m.Transition(nodeID, model.StatusRunning, "attempt started"); err != nil {
		return nil, err
	}
	s.Attempt = attemptNum
	s.Bump()
	plan.Bump()

	if err := e.store.WritePlanMetadata(plan); err != nil {
		return nil, err
	}

	return &attemptCtx{
		plan:      plan,
		nodeID:    nodeID,
		attempt:   attemptNum,
		trigger:   trigger,
		logOffset: offset,
		startedAt: time.Now(),
		baseCommit: s.BaseCommit,
	}, nil
}

// buildAttemptRecord snapshots ac plus an outcome into an AttemptRecord,
// closing its log slice at the current write offset (I7).
func (e *Executor) buildAttemptRecord(ac *attemptCtx, outcome model.NodeStatus, failedPhase model.Phase, errText string, exitCode int) model.AttemptRecord {
	endOffset, _ := e.store.CurrentLogOffset(ac.plan.ID, ac.nodeID)

	return model.AttemptRecord{
		Attempt:         ac.attempt,
		Trigger:         ac.trigger,
		StartedAt:       ac.startedAt,
		EndedAt:         time.Now(),
		Outcome:         outcome,
		FailedPhase:     failedPhase,
		Error:           errText,
		ExitCode:        exitCode,
		WorkUsed:        ac.workUsed,
		LogOffset:       ac.logOffset,
		LogEndOffset:    endOffset,
		WorktreePath:    ac.worktreePath,
		BaseCommit:      ac.baseCommit,
		CompletedCommit: ac.completedCommit,
		Metrics:         ac.metrics,
	}
}

// finalize records the AttemptRecord (I4), transitions the node to its
// terminal outcome, and persists — every exit path from RunNode funnels
// through here so no attempt is ever left unrecorded.
func (e *Executor) finalize(m *state.Machine, ac *attemptCtx, outcome model.NodeStatus, failedPhase model.Phase, errText string, exitCode int) error {
	s := ac.plan.NodeStates[ac.nodeID]

	rec := e.buildAttemptRecord(ac, outcome, failedPhase, errText, exitCode)
	s.AttemptHistory = append(s.AttemptHistory, rec)
	s.CompletedCommit = ac.completedCommit
	s.WorktreePath = ac.worktreePath
	if failedPhase != "" {
		s.ResumeFromPhase = failedPhase
	}
	s.Bump()
	ac.plan.Bump()

	if err := m.Transition(ac.nodeID, outcome, string(failedPhase)); err != nil {
		return err
	}

	return e.store.WritePlanMetadata(ac.plan)
}

// recordFailedAttempt appends an AttemptRecord for the attempt that
// just failed without transitioning the node's status — used when
// auto-heal is about to start a genuine second attempt rather than
// giving up, so the attempt that failed still gets its own permanent
// record (spec §4.4(d): "the auto-heal attempt is itself recorded as
// an AttemptRecord with trigger = auto-heal", which only makes sense if
// the attempt it's healing from got one too).
func (e *Executor) recordFailedAttempt(ac *attemptCtx, failedPhase model.Phase, errText error, exitCode int) error {
	s := ac.plan.NodeStates[ac.nodeID]

	msg := ""
	if errText != nil {
		msg = errText.Error()
	}
	rec := e.buildAttemptRecord(ac, model.StatusFailed, failedPhase, msg, exitCode)
	s.AttemptHistory = append(s.AttemptHistory, rec)
	s.Bump()
	ac.plan.Bump()

	return e.store.WritePlanMetadata(ac.plan)
}

// beginHealAttempt re-points ac at a genuine second attempt for the
// auto-heal pass (spec §4.4(d)): a new attempt number with its own spec
// snapshot (the synthesized task written in place of the failed
// phase), a fresh log offset, and trigger=auto-heal — so the eventual
// finalize() call records the heal pass as its own AttemptRecord
// instead of folding it into the attempt that just failed.
func (e *Executor) beginHealAttempt(ac *attemptCtx, phase model.Phase, healSpec *model.PhaseSpec) error {
	s := ac.plan.NodeStates[ac.nodeID]

	attemptNum := s.Attempt + 1
	if err := e.store.SnapshotSpecsForAttempt(ac.plan.ID, ac.nodeID, attemptNum); err != nil {
		return err
	}
	if err := e.store.WriteNodeSpec(ac.plan.ID, ac.nodeID, phase, healSpec); err != nil {
		return err
	}

	offset, err := e.store.CurrentLogOffset(ac.plan.ID, ac.nodeID)
	if err != nil {
		return err
	}

	s.Attempt = attemptNum
	s.Bump()
	ac.plan.Bump()
	if err := e.store.WritePlanMetadata(ac.plan); err != nil {
		return err
	}

	ac.attempt = attemptNum
	ac.trigger = model.TriggerAutoHeal
	ac.logOffset = offset
	ac.startedAt = time.Now()
	ac.workUsed = healSpec
	return nil
}

// recordMetrics folds a resolver's metrics into the attempt's metrics
// map under key (the merge phase's bucket): FilesResolved and DurationMs
// are summed across calls with the same key, AgentInvoked is set if any
// call invoked an agent, and Strategy keeps the latest value. The totals
// live on the AttemptRecord only; NodeExecutionState keeps no metrics of
// its own.
func recordMetrics(ac *attemptCtx, key string, m resolver.Metrics) {
	if ac.metrics == nil {
		ac.metrics = make(map[string]any)
	}
	if prev, ok := ac.metrics[key].(resolver.Metrics); ok {
		m.FilesResolved += prev.FilesResolved
		m.DurationMs += prev.DurationMs
		m.AgentInvoked = m.AgentInvoked || prev.AgentInvoked
	}
	ac.metrics[key] = m
}
