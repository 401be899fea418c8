//go:build windows

package gdb

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup kills gdb. Windows has no Unix-style process groups, so the
// inferior is reached only through gdb's own teardown.
func killProcessGroup(_ int, cmd *exec.Cmd) error {
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}

// setProcAttr creates a new process group so console signals aimed at us do not reach gdb.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
