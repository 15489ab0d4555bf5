//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// configureWorkerProcess sets Windows-specific process attributes for worker detachment
func configureWorkerProcess(cmd *exec.Cmd) {
	// CREATE_NEW_PROCESS_GROUP detaches from parent console on Windows
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
