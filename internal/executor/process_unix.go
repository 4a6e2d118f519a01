//go:build !windows

package executor

import (
	"errors"
	"os/exec"
	"syscall"
)

// sweepAfterRun kills the group once the leader has exited. The group id
// stays reserved while any member is alive, so this only reaches the
// program's own background children.
const sweepAfterRun = true

// setupProcessGroup puts the command in its own process group so the whole
// tree (compiler drivers, forked children) can be killed together.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup sends SIGKILL to the command's process group. The group
// id equals the leader's pid, so this still reaches orphaned children after
// the leader has been reaped.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
