// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitsource

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// initRepo creates a throwaway git repository with one committed file.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-q")
	if err := os.WriteFile(filepath.Join(dir, "a.py"), []byte("print('v1')\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run("add", "a.py")
	run("-c", "user.email=test@example.com", "-c", "user.name=test", "commit", "-q", "-m", "init")
	return dir
}

// TestChangedFilesStaged tests staged change listing and diff.
func TestChangedFilesStaged(t *testing.T) {
	dir := initRepo(t)
	client := NewClient(dir)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "a.py"), []byte("print('v2')\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := exec.Command("git", "add", "a.py")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v: %s", err, out)
	}

	files, err := client.ChangedFiles(ctx, true)
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"a.py"}) {
		t.Errorf("ChangedFiles = %v", files)
	}

	diff, err := client.Diff(ctx, true)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if !strings.Contains(diff, "+print('v2')") {
		t.Errorf("staged diff missing change: %q", diff)
	}

	content, err := client.FileContent(ctx, "a.py", true)
	if err != nil {
		t.Fatalf("FileContent failed: %v", err)
	}
	if content != "print('v2')\n" {
		t.Errorf("staged content = %q", content)
	}
}

// TestTrackedFiles tests the full-scan file listing.
func TestTrackedFiles(t *testing.T) {
	dir := initRepo(t)
	client := NewClient(dir)

	files, err := client.TrackedFiles(context.Background())
	if err != nil {
		t.Fatalf("TrackedFiles failed: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"a.py"}) {
		t.Errorf("TrackedFiles = %v", files)
	}
}

// TestWorktreeContent tests unstaged content reads from disk.
func TestWorktreeContent(t *testing.T) {
	dir := initRepo(t)
	client := NewClient(dir)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "a.py"), []byte("print('dirty')\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	content, err := client.FileContent(ctx, "a.py", false)
	if err != nil {
		t.Fatalf("FileContent failed: %v", err)
	}
	if content != "print('dirty')\n" {
		t.Errorf("worktree content = %q", content)
	}

	files, err := client.ChangedFiles(ctx, false)
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"a.py"}) {
		t.Errorf("ChangedFiles = %v", files)
	}
}
