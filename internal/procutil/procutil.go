// Package procutil wraps golang.org/x/sys/unix for the two process
// primitives the Liveness Watchdog and Node Executor cancellation need:
// checking whether a tracked PID is still alive, and killing an entire
// process group. The teacher's internal/engine/state.go IsProcessAlive
// called syscall.Signal(0) directly; this generalizes that check and
// adds the process-group kill cancel() needs, via the ecosystem's
// unix syscall wrapper instead of the bare syscall package.
package procutil

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// IsAlive reports whether a process with the given PID is still
// running. Sending signal 0 performs no action but still validates
// that the PID exists and is reachable.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil
}

// KillProcessGroup sends SIGTERM to the process group led by pid — the
// POSIX process-group kill for the Node Executor's cancel() (spec
// §4.4, §5). This package has no Windows counterpart: dagline targets
// POSIX hosts, as the teacher's own pty dependency does.
func KillProcessGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, unix.SIGTERM)
	if err == unix.ESRCH {
		return nil // already gone
	}
	return err
}

// SetpgidAttr returns the SysProcAttr needed so a spawned child becomes
// its own process group leader, making KillProcessGroup effective
// against the whole tree it spawns.
func SetpgidAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
