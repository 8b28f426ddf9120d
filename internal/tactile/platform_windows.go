//go:build windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
)

const isWindows = true

// setupProcessGroup is a no-op on Windows; only the direct child is killed.
func setupProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func processUsage(cmd *exec.Cmd) *ResourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}
	return &ResourceUsage{
		UserTime:   cmd.ProcessState.UserTime(),
		SystemTime: cmd.ProcessState.SystemTime(),
	}
}
