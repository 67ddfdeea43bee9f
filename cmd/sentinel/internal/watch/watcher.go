// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/sentinel/pkg/logging"
)

// skipDirs are directory names never watched: their churn is not
// check-relevant and .git in particular is extremely noisy.
var skipDirs = map[string]bool{".git": true, ".sentinel": true, "node_modules": true}

// Runner watches a work tree and re-runs an action when the change
// signature moves.
type Runner struct {
	// Root is the directory to watch, recursively.
	Root string

	// Interval is the periodic signature poll, a safety net for
	// edits the filesystem watcher misses. Zero disables polling.
	Interval time.Duration

	// Debounce delays the signature check after a burst of events.
	Debounce time.Duration

	// MaxRuns stops the watcher after that many action runs; zero
	// means run until the context is canceled.
	MaxRuns int

	Logger *logging.Logger
}

// Run blocks, re-running action whenever signature reports a value
// different from the last acted-on one.
//
// # Description
//
// An initial run always happens when the tree is dirty. After that,
// filesystem events (debounced) and the interval ticker both trigger
// a signature probe; only a changed signature triggers the action. A
// clean tree (EmptySignature) never triggers. Returns nil on context
// cancellation or once MaxRuns is reached.
func (r *Runner) Run(ctx context.Context, signature func(context.Context) (string, error), action func(context.Context) error) error {
	if r.Debounce <= 0 {
		r.Debounce = 500 * time.Millisecond
	}
	if r.Logger == nil {
		r.Logger = logging.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := r.addTree(watcher, r.Root); err != nil {
		return err
	}

	var ticker *time.Ticker
	var tick <-chan time.Time
	if r.Interval > 0 {
		ticker = time.NewTicker(r.Interval)
		tick = ticker.C
		defer ticker.Stop()
	}

	debounce := time.NewTimer(r.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	lastActed := ""
	runs := 0

	probe := func() error {
		sig, err := signature(ctx)
		if err != nil {
			r.Logger.Warn("signature probe failed", "error", err)
			return nil
		}
		if sig == EmptySignature || sig == lastActed {
			return nil
		}
		r.Logger.Info("change detected, running check", "run", runs+1)
		if err := action(ctx); err != nil {
			r.Logger.Warn("check run failed", "error", err)
		}
		lastActed = sig
		runs++
		return nil
	}

	// Catch changes that predate the watcher.
	if err := probe(); err != nil {
		return err
	}
	if r.MaxRuns > 0 && runs >= r.MaxRuns {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if r.ignorable(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = r.addTree(watcher, event.Name)
				}
			}
			debounce.Reset(r.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.Logger.Warn("watcher error", "error", err)

		case <-debounce.C:
			if err := probe(); err != nil {
				return err
			}
			if r.MaxRuns > 0 && runs >= r.MaxRuns {
				return nil
			}

		case <-tick:
			if err := probe(); err != nil {
				return err
			}
			if r.MaxRuns > 0 && runs >= r.MaxRuns {
				return nil
			}
		}
	}
}

// addTree registers root and its subdirectories with the watcher.
func (r *Runner) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] && path != root {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			r.Logger.Debug("watch add failed", "path", path, "error", err)
		}
		return nil
	})
}

// ignorable filters events inside skipped directories.
func (r *Runner) ignorable(path string) bool {
	rel, err := filepath.Rel(r.Root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}
