// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// fileLock serializes queue mutations across processes on one host.
//
// # Thread Safety
//
// fileLock is NOT safe for concurrent use. Each caller takes its own
// instance; the underlying flock arbitrates between them.
//
// # Platform Support
//
// Uses flock(2). The lock is advisory and only guards the short
// read-modify-write window; claim and resolve correctness against
// stale holders comes from the CAS tokens on the records themselves.
type fileLock struct {
	path string
	file *os.File
}

// newFileLock creates a lock for the queue directory, not yet held.
func newFileLock(queueDir string) *fileLock {
	return &fileLock{path: filepath.Join(queueDir, ".lock")}
}

// acquire blocks until the exclusive lock is held.
func (l *fileLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return fmt.Errorf("flock: %w", err)
	}

	// Record the holder for debugging; failures here are non-fatal.
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = fmt.Fprintf(file, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))

	l.file = file
	return nil
}

// release drops the lock. Safe to call on an unacquired lock.
func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
