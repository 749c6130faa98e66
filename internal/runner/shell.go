package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/procutil"
)

// DefaultExecutor is the JobExecutor used outside of tests: shell and
// subprocess phases run as direct child processes each in their own
// process group (so cancellation can kill the whole tree); agent-task
// phases are delegated to runAgent.
type DefaultExecutor struct {
	// AgentCommand/AgentArgs are the defaults for phases that don't
	// override them (config.AgentConfig), mirroring the teacher's
	// cfg.Agent.Command/Args.
	AgentCommand string
	AgentArgs    []string
}

func (e *DefaultExecutor) RunPhase(ctx context.Context, phase *model.PhaseSpec, workDir string, log io.Writer) PhaseResult {
	switch phase.Kind {
	case model.KindShellCommand:
		return e.runExec(ctx, "sh", []string{"-c", phase.Command}, phase.Env, workDir, log)
	case model.KindSubprocess:
		return e.runExec(ctx, phase.Program, phase.Args, phase.Env, workDir, log)
	case model.KindAgentTask:
		return e.runAgent(ctx, phase, workDir, log)
	default:
		return PhaseResult{Err: errors.New("unknown phase kind: " + string(phase.Kind))}
	}
}

func (e *DefaultExecutor) runExec(ctx context.Context, program string, args []string, env map[string]string, workDir string, log io.Writer) PhaseResult {
	cmd := exec.Command(program, args...)
	cmd.Dir = workDir
	cmd.Stdout = log
	cmd.Stderr = log
	cmd.SysProcAttr = procutil.SetpgidAttr()
	if len(env) > 0 {
		cmd.Env = mergeEnv(env)
	}

	if err := cmd.Start(); err != nil {
		return PhaseResult{Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = procutil.KillProcessGroup(cmd.Process.Pid)
		<-done
		return PhaseResult{Signaled: true, Err: ctx.Err()}
	case err := <-done:
		return exitResult(err)
	}
}

func exitResult(err error) PhaseResult {
	if err == nil {
		return PhaseResult{ExitCode: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return PhaseResult{Signaled: true, Err: err}
		}
		return PhaseResult{ExitCode: exitErr.ExitCode(), Err: err}
	}
	return PhaseResult{Err: err}
}

func mergeEnv(extra map[string]string) []string {
	base := os.Environ()
	for k, v := range extra {
		base = append(base, k+"="+v)
	}
	return base
}
