//go:build windows

package executor

import (
	"os/exec"
	"strconv"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// sweepAfterRun is off: taskkill addresses a pid, and once the leader is
// reaped that pid may belong to an unrelated process.
const sweepAfterRun = false

func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= createNewProcessGroup
}

// killProcessGroup terminates the process tree with taskkill /T.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	if err := kill.Run(); err != nil {
		// The tree may already be gone; fall back to the direct child.
		_ = cmd.Process.Kill()
	}
	return nil
}
