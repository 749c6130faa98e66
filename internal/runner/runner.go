// Package runner is the work runner the core consumes through a
// JobExecutor contract: the piece that actually executes a job's
// phases (shell, subprocess, or AI agent), generalized from the
// teacher's internal/engine invokeAgent/processConcern pair.
package runner

import (
	"context"
	"io"

	"github.com/re-cinq/dagline/internal/model"
)

// PhaseResult is what a JobExecutor reports back for one phase run.
type PhaseResult struct {
	ExitCode int
	Signaled bool
	Err      error
}

// Succeeded reports whether the phase completed with no error and a
// zero exit code.
func (r PhaseResult) Succeeded() bool {
	return r.Err == nil && r.ExitCode == 0 && !r.Signaled
}

// JobExecutor runs a single phase of a node in a given working
// directory, streaming combined stdout/stderr to log. Implementations
// must honor ctx cancellation by killing the phase's process tree
// (spec §4.7's forceful cancellation path).
type JobExecutor interface {
	RunPhase(ctx context.Context, phase *model.PhaseSpec, workDir string, log io.Writer) PhaseResult
}
