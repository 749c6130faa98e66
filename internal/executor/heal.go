package executor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/runner"
)

// autoHealLogLines is how many trailing lines of a failed phase's logs
// are handed to the synthesized diagnostic agent task (spec §4.4(d):
// "the last ~200 lines of phase logs").
const autoHealLogLines = 200

// externallyKilledMarkers are substrings in a phase's error text that
// spec §4.4(d) treats as "agent phase failed because externally
// killed" — eligible for a bare re-invocation rather than synthesized
// diagnosis.
var externallyKilledMarkers = []string{"signal:", "killed", "terminated"}

// runPhaseWithHeal runs phase once, and — on failure, if the node's
// autoHeal flag is set and this phase hasn't already had a heal
// attempt — runs one of the two auto-heal variants from spec §4.4(d)
// before giving up. Returns the phase's final outcome with an exit
// code: 0 on success, the failed phase's own exit code when no heal
// pass runs, and the heal pass's exit code when the heal runs and
// fails.
func (e *Executor) runPhaseWithHeal(ctx context.Context, ac *attemptCtx, node model.NodeSpec, phase model.Phase, spec *model.PhaseSpec, log io.Writer) (model.PhaseOutcome, int, error) {
	result := e.jobExec.RunPhase(ctx, spec, ac.worktreePath, log)
	if result.Succeeded() {
		return model.PhaseSuccess, 0, nil
	}

	s := ac.plan.NodeStates[node.ID]
	if !node.AutoHeal || s.AutoHealAttempted[phase] {
		return model.PhaseFailed, result.ExitCode, phaseErr(phase, result)
	}
	if s.AutoHealAttempted == nil {
		s.AutoHealAttempted = make(map[model.Phase]bool)
	}
	s.AutoHealAttempted[phase] = true
	s.Bump()

	var healSpec *model.PhaseSpec
	if spec.Kind == model.KindAgentTask {
		if !wasExternallyKilled(result.Err) {
			return model.PhaseFailed, result.ExitCode, phaseErr(phase, result)
		}
		healSpec = spec // re-invoke the same agent task verbatim
	} else {
		healSpec = e.synthesizeHealTask(ac, node, phase, spec, result)
	}

	// The phase that just failed is its own attempt (spec §4.4(d)):
	// record it now under the trigger this RunNode call started with,
	// then re-point ac at a fresh attempt so the top-level finalize()
	// records the heal pass instead.
	if err := e.recordFailedAttempt(ac, phase, phaseErr(phase, result), result.ExitCode); err != nil {
		return model.PhaseFailed, result.ExitCode, err
	}
	if err := e.beginHealAttempt(ac, phase, healSpec); err != nil {
		return model.PhaseFailed, result.ExitCode, err
	}

	healResult := e.jobExec.RunPhase(ctx, healSpec, ac.worktreePath, log)

	// Restore the original spec regardless of outcome so later attempts
	// see the authored phase rather than the synthesized diagnostic task.
	if err := e.store.WriteNodeSpec(ac.plan.ID, node.ID, phase, spec); err != nil {
		e.log.Warn().Str("node", node.ID).Str("phase", string(phase)).Err(err).Msg("restoring original phase spec after auto-heal")
	}

	if !healResult.Succeeded() {
		return model.PhaseFailed, healResult.ExitCode, fmt.Errorf("auto-heal for %s failed: %w", phase, phaseErr(phase, healResult))
	}
	return model.PhaseSuccess, 0, nil
}

// synthesizeHealTask builds the diagnostic agent-task phase §4.4(d)
// describes: the original command plus the tail of this attempt's
// phase logs, instructing the agent to diagnose, fix in place, and
// re-run the original command.
func (e *Executor) synthesizeHealTask(ac *attemptCtx, node model.NodeSpec, phase model.Phase, original *model.PhaseSpec, failure runner.PhaseResult) *model.PhaseSpec {
	size, _ := e.store.CurrentLogOffset(ac.plan.ID, node.ID)
	full, _ := e.store.ReadLogSlice(ac.plan.ID, node.ID, 0, size)
	tail := lastLines(full, autoHealLogLines)

	var cmdDesc string
	switch original.Kind {
	case model.KindShellCommand:
		cmdDesc = original.Command
	case model.KindSubprocess:
		cmdDesc = original.Program + " " + strings.Join(original.Args, " ")
	default:
		cmdDesc = original.Instructions
	}

	instructions := fmt.Sprintf(
		"The %s phase of job %q failed.\n\nOriginal command:\n%s\n\nLast log output:\n%s\n\nDiagnose the failure from the logs, fix it in place, then re-run the original command.",
		phase, node.Name, cmdDesc, string(tail),
	)

	return &model.PhaseSpec{
		Kind:         model.KindAgentTask,
		Instructions: instructions,
		AgentCommand: original.AgentCommand,
		AgentArgs:    original.AgentArgs,
		Env:          original.Env,
	}
}

func wasExternallyKilled(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range externallyKilledMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func phaseErr(phase model.Phase, r runner.PhaseResult) error {
	if r.Err != nil {
		return fmt.Errorf("%s: %w", phase, r.Err)
	}
	return fmt.Errorf("%s: exit code %d", phase, r.ExitCode)
}

func lastLines(data []byte, n int) []byte {
	lines := strings.Split(string(data), "\n")
	if len(lines) <= n {
		return data
	}
	return []byte(strings.Join(lines[len(lines)-n:], "\n"))
}
