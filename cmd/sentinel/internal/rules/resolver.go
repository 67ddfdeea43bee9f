// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// StateDirName is the per-project state directory at the repository
// root (and optionally in subdirectories, for layered rules).
const StateDirName = ".sentinel"

// FindProjectRuleDirs walks upward from startDir collecting every
// <dir>/.sentinel/rules directory that exists.
//
// # Description
//
// The returned slice is ordered nearest-first: the rules directory
// closest to startDir comes before its ancestors'. stopDir, when
// non-empty, bounds the walk; the walk includes stopDir itself and
// never ascends past it. With an empty stopDir the walk continues to
// the filesystem root.
//
// # Outputs
//
//   - []string: absolute rule directory paths, nearest first. Empty
//     when no layer defines rules.
//   - error: non-nil only when startDir cannot be made absolute.
func FindProjectRuleDirs(startDir, stopDir string) ([]string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolving start dir: %w", err)
	}
	var stop string
	if stopDir != "" {
		stop, err = filepath.Abs(stopDir)
		if err != nil {
			return nil, fmt.Errorf("resolving stop dir: %w", err)
		}
	}

	var dirs []string
	for {
		candidate := filepath.Join(dir, StateDirName, "rules")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			dirs = append(dirs, candidate)
		}

		if stop != "" && dir == stop {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dirs, nil
}

// Resolve loads and merges rules from the layered search roots.
//
// # Description
//
// projectDirs must be ordered nearest-first (as produced by
// FindProjectRuleDirs). baseDir, when non-empty, is the lowest-priority
// root (the plugin-shipped rule set). Override is by rule identity,
// whole-document: a nearer root's document for the same relative path
// completely replaces a farther one's.
//
// # Outputs
//
//   - []Rule: merged rules sorted by name for deterministic iteration.
//   - []string: accumulated load warnings across all roots.
//   - error: I/O failure in any root, or ErrNoRules when the merge is
//     empty.
func Resolve(baseDir string, projectDirs []string) ([]Rule, []string, error) {
	// Apply farthest-first so nearer layers overwrite by name.
	roots := make([]string, 0, len(projectDirs)+1)
	if baseDir != "" {
		roots = append(roots, baseDir)
	}
	for i := len(projectDirs) - 1; i >= 0; i-- {
		roots = append(roots, projectDirs[i])
	}

	merged := make(map[string]Rule)
	var warnings []string
	for _, root := range roots {
		loaded, warns, err := LoadDir(root)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, warns...)
		for _, rule := range loaded {
			merged[rule.Name] = rule
		}
	}

	if len(merged) == 0 {
		return nil, warnings, ErrNoRules
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Rule, 0, len(merged))
	for _, name := range names {
		out = append(out, merged[name])
	}
	return out, warnings, nil
}
