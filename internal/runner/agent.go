package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/creack/pty"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/procutil"
)

// runAgent invokes a coding agent for an agent-task phase, adapted from
// the teacher's invokeAgent: instructions are written to a scratch file
// in the work directory and also piped to stdin, stdout/stderr are
// captured through a PTY so line-buffered agents stream their output
// for live log tailing, and the whole child runs in its own process
// group so ctx cancellation can kill it along with anything it spawned.
func (e *DefaultExecutor) runAgent(ctx context.Context, phase *model.PhaseSpec, workDir string, log io.Writer) PhaseResult {
	instrFile := filepath.Join(workDir, ".dagline-instructions")
	if err := os.WriteFile(instrFile, []byte(phase.Instructions), 0644); err != nil {
		return PhaseResult{Err: fmt.Errorf("writing agent instructions: %w", err)}
	}
	defer os.Remove(instrFile)

	program := phase.AgentCommand
	args := phase.AgentArgs
	if program == "" {
		program = e.AgentCommand
		args = e.AgentArgs
	}
	if program == "" {
		return PhaseResult{Err: errors.New("agent-task phase has no agent command configured")}
	}
	args = append(append([]string{}, args...), instrFile)

	cmd := exec.Command(program, args...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(phase.Instructions)
	cmd.SysProcAttr = procutil.SetpgidAttr()

	ptmx, pts, err := pty.Open()
	if err != nil {
		return PhaseResult{Err: fmt.Errorf("opening pty: %w", err)}
	}
	defer ptmx.Close()

	cmd.Stdout = pts
	cmd.Stderr = pts

	if err := cmd.Start(); err != nil {
		pts.Close()
		return PhaseResult{Err: fmt.Errorf("starting agent: %w", err)}
	}
	pts.Close()

	copyDone := make(chan struct{})
	go func() {
		_, cerr := io.Copy(log, ptmx)
		if cerr != nil {
			var pathErr *os.PathError
			if !(errors.As(cerr, &pathErr) && pathErr.Err == syscall.EIO) {
				fmt.Fprintf(log, "\n[agent output read error: %s]\n", cerr)
			}
		}
		close(copyDone)
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = procutil.KillProcessGroup(cmd.Process.Pid)
		<-waitDone
		<-copyDone
		return PhaseResult{Signaled: true, Err: ctx.Err()}
	case err := <-waitDone:
		<-copyDone
		return exitResult(err)
	}
}
