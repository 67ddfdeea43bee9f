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
	"path/filepath"
	"sort"
)

// Prune removes the oldest stream directories under root until at
// most keep remain.
//
// Stream ids sort chronologically by construction, so "oldest" is
// simply the lexicographic low end. Entries that are not valid stream
// ids are left alone. Removal failures are reported but do not stop
// the sweep.
func Prune(root string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading stream root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() && ValidID(entry.Name()) {
			ids = append(ids, entry.Name())
		}
	}
	if len(ids) <= keep {
		return nil
	}
	sort.Strings(ids)

	var firstErr error
	for _, id := range ids[:len(ids)-keep] {
		if err := os.RemoveAll(filepath.Join(root, id)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pruning stream %s: %w", id, err)
		}
	}
	return firstErr
}
