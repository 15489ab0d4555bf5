//go:build unix

package main

import (
	"os/exec"
	"syscall"
)

// configureWorkerProcess sets Unix-specific process attributes for worker detachment
func configureWorkerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
