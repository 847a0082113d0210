//go:build windows

package process

import (
	"os"
	"os/exec"
)

// configureProcessGroup is a no-op on Windows: ConPTY/ordinary child
// processes are terminated directly rather than via a POSIX process group.
func configureProcessGroup(*exec.Cmd) {}

// terminateProcessGroup kills pid directly. Windows has no SIGTERM, so
// there is no graceful phase to distinguish from killProcessGroup.
func terminateProcessGroup(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
}

func killProcessGroup(pid int) {
	terminateProcessGroup(pid)
}
