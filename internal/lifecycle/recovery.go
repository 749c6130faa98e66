package lifecycle

import (
	"time"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/procutil"
	"github.com/re-cinq/dagline/internal/state"
)

// RecoverCrashedPlans implements Crash Recovery (spec §4.10): for every
// loaded plan, every node left in status running is force-failed with
// reason "crashed" unless its tracked PID is still alive. Must run once
// at startup before the pump begins ticking.
func (l *Lifecycle) RecoverCrashedPlans() error {
	ids, err := l.store.ListPlanIDs()
	if err != nil {
		return err
	}

	for _, id := range ids {
		plan, err := l.store.ReadPlanMetadata(id)
		if err != nil {
			l.log.Warn().Str("plan", id).Err(err).Msg("skipping unreadable plan during crash recovery")
			continue
		}

		if recoverPlan(plan) {
			if err := l.store.WritePlanMetadata(plan); err != nil {
				l.log.Error().Str("plan", id).Err(err).Msg("persisting plan after crash recovery")
			}
		}
	}
	return nil
}

// recoverPlan force-fails every running node whose process is dead or
// untracked and reports whether it changed anything.
func recoverPlan(plan *model.Plan) bool {
	m := state.New(plan)
	changed := false
	for nodeID, s := range plan.NodeStates {
		if s.Status != model.StatusRunning {
			continue
		}
		if s.PID != 0 && procutil.IsAlive(s.PID) {
			continue
		}

		if err := m.Transition(nodeID, model.StatusFailed, "crashed"); err != nil {
			// Status drifted between the status check and the
			// transition (shouldn't happen at startup, before the pump
			// runs) — fall back to a direct mark so recovery still makes
			// progress.
			now := time.Now()
			s.Status = model.StatusFailed
			s.EndedAt = &now
			s.Bump()
			plan.Bump()
		}
		changed = true
	}
	return changed
}
