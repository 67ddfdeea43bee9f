// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// SubprocessChecker invokes an external CLI judge. The prompt goes to
// stdin, the response comes back on stdout.
type SubprocessChecker struct {
	// Argv is the full command line, program first. Defaults to
	// {"claude", "-p"} when empty.
	Argv []string
}

var _ Checker = (*SubprocessChecker)(nil)

// NewSubprocessChecker creates a SubprocessChecker for argv.
func NewSubprocessChecker(argv []string) *SubprocessChecker {
	if len(argv) == 0 {
		argv = []string{"claude", "-p"}
	}
	return &SubprocessChecker{Argv: argv}
}

// Check runs the subprocess once for the request.
//
// The context deadline kills the process; a killed or failed process
// surfaces as an error so the engine can fail open. Exit status is
// not interpreted as a verdict since CLI judges signal through text.
func (c *SubprocessChecker) Check(ctx context.Context, req Request) (Verdict, error) {
	if _, err := exec.LookPath(c.Argv[0]); err != nil {
		return Verdict{}, fmt.Errorf("%w: %s not found", ErrUnavailable, c.Argv[0])
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = strings.NewReader(BuildPrompt(req))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, fmt.Errorf("checker subprocess: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Verdict{}, fmt.Errorf("checker subprocess exited %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return Verdict{}, fmt.Errorf("checker subprocess: %w", err)
	}

	return ParseVerdict(req, stdout.String())
}
