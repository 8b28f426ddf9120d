//go:build !windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

const isWindows = false

// setupProcessGroup puts the child in its own process group so a timeout can
// take down everything it spawned.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup kills the process and all its children.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	// Setpgid makes the child the group leader, so its pid names the group
	// even after the leader itself has been reaped.
	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil || pgid <= 0 {
		pgid = pid
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	}

	// Fallback for a child that already left its group.
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// processUsage extracts CPU time from the finished child.
func processUsage(cmd *exec.Cmd) *ResourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}
	return &ResourceUsage{
		UserTime:   cmd.ProcessState.UserTime(),
		SystemTime: cmd.ProcessState.SystemTime(),
	}
}
