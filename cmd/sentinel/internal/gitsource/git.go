// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitsource reads change content out of the enclosing git
// repository through the git CLI.
package gitsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotARepository indicates the working directory is not inside a
// git work tree.
var ErrNotARepository = errors.New("not a git repository")

// commandTimeout bounds any single git invocation.
const commandTimeout = 30 * time.Second

// Client reads diffs, file lists, and file content from a repository.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; DefaultClient is,
// as each call spawns an independent process.
type Client interface {
	// RepoRoot returns the absolute path of the work tree root.
	RepoRoot(ctx context.Context) (string, error)

	// Diff returns the unified diff of unstaged (staged=false) or
	// staged (staged=true) changes.
	Diff(ctx context.Context, staged bool) (string, error)

	// ChangedFiles lists changed, non-deleted paths relative to the
	// repository root.
	ChangedFiles(ctx context.Context, staged bool) ([]string, error)

	// TrackedFiles lists every tracked path relative to the
	// repository root.
	TrackedFiles(ctx context.Context) ([]string, error)

	// FileContent reads a file's content, from the index when staged
	// or from the work tree otherwise.
	FileContent(ctx context.Context, path string, staged bool) (string, error)
}

// DefaultClient is the git CLI implementation of Client.
type DefaultClient struct {
	// Dir is the directory git commands run in. Empty means the
	// current working directory.
	Dir string
}

var _ Client = (*DefaultClient)(nil)

// NewClient creates a DefaultClient rooted at dir.
func NewClient(dir string) *DefaultClient {
	return &DefaultClient{Dir: dir}
}

// run executes a git subcommand and returns its stdout.
func (c *DefaultClient) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "not a git repository") {
			return "", ErrNotARepository
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RepoRoot returns the absolute work tree root.
func (c *DefaultClient) RepoRoot(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Diff returns the unified diff for the requested change set.
func (c *DefaultClient) Diff(ctx context.Context, staged bool) (string, error) {
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	if staged {
		args = append(args, "--cached")
	}
	return c.run(ctx, args...)
}

// ChangedFiles lists changed, non-deleted paths. Deleted files carry
// no content to check, so they are filtered at the git level.
func (c *DefaultClient) ChangedFiles(ctx context.Context, staged bool) ([]string, error) {
	args := []string{"diff", "--name-only", "--diff-filter=d"}
	if staged {
		args = append(args, "--cached")
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// TrackedFiles lists all tracked paths.
func (c *DefaultClient) TrackedFiles(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// FileContent reads file content from the index or work tree.
func (c *DefaultClient) FileContent(ctx context.Context, path string, staged bool) (string, error) {
	if staged {
		return c.run(ctx, "show", ":"+path)
	}
	root, err := c.RepoRoot(ctx)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(root, path))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// splitLines splits command output into non-empty trimmed lines.
func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
