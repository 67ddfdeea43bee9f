// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Spawn launches the worker process detached from the caller.
//
// # Description
//
// The worker runs in its own session (setsid) so it survives the
// parent's exit and never receives the parent's terminal signals. Its
// stdout and stderr are redirected to logPath; structured logs go
// there too, so crashes and panics land in the same file operators
// already look at.
//
// # Inputs
//
//   - binary: the executable to run, normally os.Executable().
//   - args: full argument list for the worker entry.
//   - dir: working directory for the worker.
//   - logPath: file receiving stdout and stderr.
func Spawn(binary string, args []string, dir, logPath string) error {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("opening worker log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	// The worker is on its own now; do not wait, do not keep a handle.
	return cmd.Process.Release()
}
