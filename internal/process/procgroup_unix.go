//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup marks cmd to start in its own process group, so a
// later terminateProcessGroup/killProcessGroup reaches every descendant it
// spawns — grounded on the teacher's Setpgid:true in ProcessRunner.Start.
func configureProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateProcessGroup sends SIGTERM to pid's process group (or to pid
// alone if the group can't be resolved), the graceful phase of the
// teacher's two-phase Stop.
func terminateProcessGroup(pid int) {
	if pgid, err := syscall.Getpgid(pid); err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
		return
	}
	_ = syscall.Kill(pid, syscall.SIGTERM)
}

// killProcessGroup sends SIGKILL to pid's process group, the escalation
// phase of the teacher's two-phase Stop.
func killProcessGroup(pid int) {
	if pgid, err := syscall.Getpgid(pid); err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
