// Package lifecycle is Plan Lifecycle (C12): create, pause, resume,
// cancel, delete, plus the Retry API (§4.9) and Crash Recovery (§4.10).
// Grounded on the teacher's duplicate-guard/PID-file pattern in
// internal/engine/runner.go (IsRunnerAlive/WritePID/RemovePID), adapted
// here from "one runner process per repo" to "one plan document per
// DAG run" — the crash signal is a dead PID recorded on a node rather
// than on the whole process.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/re-cinq/dagline/internal/events"
	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/procutil"
	"github.com/re-cinq/dagline/internal/state"
	"github.com/re-cinq/dagline/internal/store"
)

// Lifecycle owns the create/pause/resume/cancel/delete surface over
// plans in a Store.
type Lifecycle struct {
	store *store.Store
	log   zerolog.Logger
	emit  events.Emitter
}

// New builds a Lifecycle over the given Store.
func New(st *store.Store, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{store: st, log: log}
}

// SetEmitter wires an observable-events sink into this Lifecycle (spec
// §6): Create publishes planCreated, Delete publishes planDeleted, and
// Retry publishes nodeRetry.
func (l *Lifecycle) SetEmitter(emit events.Emitter) {
	l.emit = emit
}

func (l *Lifecycle) publish(ev events.Event) {
	if l.emit == nil {
		return
	}
	l.emit(ev)
}

// Create builds a new plan from spec, paused by default (spec §3: "a
// plan is created paused-by-default"), persists its metadata, and
// writes every node's configured phase specs into the store so the
// Node Executor has something to read on its first attempt.
func (l *Lifecycle) Create(repoPath string, spec model.PlanSpec, producerToNodeID map[string]string) (*model.Plan, error) {
	plan := &model.Plan{
		ID:               uuid.NewString(),
		Spec:             spec,
		RepoPath:         repoPath,
		ProducerToNodeID: producerToNodeID,
		NodeStates:       make(map[string]*model.NodeExecutionState, len(spec.Nodes)),
		Paused:           true,
		CreatedAt:        time.Now(),
	}

	dependentCount := make(map[string]int)
	for _, n := range spec.Nodes {
		plan.NodeStates[n.ID] = model.NewNodeExecutionState(n.ID)
		if len(n.DependsOn) == 0 {
			plan.Roots = append(plan.Roots, n.ID)
		}
		for _, dep := range n.DependsOn {
			dependentCount[dep]++
		}
	}
	for _, n := range spec.Nodes {
		if dependentCount[n.ID] == 0 {
			plan.Leaves = append(plan.Leaves, n.ID)
		}
	}

	for _, n := range spec.Nodes {
		if err := l.writePhases(plan.ID, n); err != nil {
			return nil, fmt.Errorf("writing specs for node %s: %w", n.Name, err)
		}
	}

	if err := l.store.WritePlanMetadata(plan); err != nil {
		return nil, err
	}
	l.publish(events.Event{Type: events.PlanCreated, PlanID: plan.ID})
	return plan, nil
}

func (l *Lifecycle) writePhases(planID string, n model.NodeSpec) error {
	// Attempt 1's spec directory must exist before WriteNodeSpec can
	// target it — SnapshotSpecsForAttempt(n=1) is the one call that
	// both creates attempts/1 and retargets current to it.
	if err := l.store.SnapshotSpecsForAttempt(planID, n.ID, 1); err != nil {
		return err
	}
	for phase, spec := range map[model.Phase]*model.PhaseSpec{
		model.PhasePrechecks:  n.Prechecks,
		model.PhaseWork:       n.Work,
		model.PhasePostchecks: n.Postchecks,
	} {
		if spec == nil {
			continue
		}
		if err := l.store.WriteNodeSpec(planID, n.ID, phase, spec); err != nil {
			return err
		}
	}
	return nil
}

// Pause sets a plan's paused flag so the pump skips it.
func (l *Lifecycle) Pause(planID string) error {
	plan, err := l.store.ReadPlanMetadata(planID)
	if err != nil {
		return err
	}
	plan.Paused = true
	plan.Bump()
	return l.store.WritePlanMetadata(plan)
}

// Resume clears a plan's paused flag so the pump drives its ready roots.
func (l *Lifecycle) Resume(planID string) error {
	plan, err := l.store.ReadPlanMetadata(planID)
	if err != nil {
		return err
	}
	plan.Paused = false
	plan.Bump()
	for _, rootID := range plan.Roots {
		state.New(plan).PromotePendingIfReady(rootID)
	}
	return l.store.WritePlanMetadata(plan)
}

// Cancel drives every non-terminal node to canceled (idempotent: a
// plan with nothing left to cancel keeps its node statuses, though
// each call re-stamps EndedAt and bumps StateVersion).
func (l *Lifecycle) Cancel(planID string) error {
	plan, err := l.store.ReadPlanMetadata(planID)
	if err != nil {
		return err
	}
	m := state.New(plan)
	m.CancelAll()
	now := time.Now()
	plan.EndedAt = &now
	plan.Bump()
	return l.store.WritePlanMetadata(plan)
}

// Delete cancels (best-effort) then removes a plan's entire directory.
// Idempotent per spec §3: a plan already gone is not an error.
func (l *Lifecycle) Delete(planID string) error {
	if err := l.Cancel(planID); err != nil && err != store.ErrNotFound {
		l.log.Warn().Str("plan", planID).Err(err).Msg("cancel-before-delete failed; deleting anyway")
	}
	if err := l.store.DeletePlan(planID); err != nil {
		return err
	}
	l.publish(events.Event{Type: events.PlanDeleted, PlanID: planID})
	return nil
}

// ForceFailNode always transitions a running/scheduled node to failed,
// killing its tracked process tree and flagging ForceFailed so it
// remains retryable (spec §4.9).
func (l *Lifecycle) ForceFailNode(planID, nodeID string) error {
	plan, err := l.store.ReadPlanMetadata(planID)
	if err != nil {
		return err
	}
	s := plan.NodeStates[nodeID]
	if s == nil {
		return fmt.Errorf("unknown node %q", nodeID)
	}
	if s.Status != model.StatusRunning && s.Status != model.StatusScheduled {
		return fmt.Errorf("node %q is not running or scheduled", nodeID)
	}

	if s.PID != 0 {
		_ = procutil.KillProcessGroup(s.PID)
	}

	m := state.New(plan)
	if err := m.Transition(nodeID, model.StatusFailed, "force-failed"); err != nil {
		return err
	}
	s.ForceFailed = true
	s.Bump()
	return l.store.WritePlanMetadata(plan)
}
