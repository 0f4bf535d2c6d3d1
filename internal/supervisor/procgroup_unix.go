//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the child in its own process group and makes
// cancellation kill the whole group, so engine helpers (browsers, drivers)
// die with the script.
func configureProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
}

// reapProcessGroup kills whatever is left of the group once the leader has
// exited. Members that moved to their own session are out of reach.
func reapProcessGroup(pid int) {
	if pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}
