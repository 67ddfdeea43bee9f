// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitsource

import (
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// SplitDiff breaks a unified multi-file diff into per-file chunks
// keyed by repository-relative path.
//
// # Description
//
// Parses with the go-diff library and re-serializes each file's
// section. If the diff does not parse (exotic git extensions, binary
// noise), falls back to a line scan on "diff --git" boundaries so a
// malformed region never loses the whole change set.
//
// # Outputs
//
//   - map[string]string: path to that file's diff text. Empty map for
//     an empty diff.
func SplitDiff(unified string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(unified) == "" {
		return out
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(unified))
	if err == nil && len(fileDiffs) > 0 {
		for _, fd := range fileDiffs {
			path := diffPath(fd)
			if path == "" {
				continue
			}
			raw, err := diff.PrintFileDiff(fd)
			if err != nil {
				continue
			}
			out[path] = string(raw)
		}
		if len(out) > 0 {
			return out
		}
	}

	return splitDiffManually(unified)
}

// diffPath extracts the post-change path of a file diff, preferring
// the new name so renames key on where the content now lives.
func diffPath(fd *diff.FileDiff) string {
	path := strings.TrimPrefix(fd.NewName, "b/")
	if path == "" || path == "/dev/null" {
		path = strings.TrimPrefix(fd.OrigName, "a/")
	}
	if path == "/dev/null" {
		return ""
	}
	return path
}

// splitDiffManually is the parse-failure fallback: chunk on
// "diff --git a/X b/Y" header lines.
func splitDiffManually(unified string) map[string]string {
	out := make(map[string]string)
	lines := strings.Split(unified, "\n")

	var path string
	var chunk []string
	flush := func() {
		if path != "" && len(chunk) > 0 {
			out[path] = strings.Join(chunk, "\n") + "\n"
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			path = ""
			chunk = chunk[:0]
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				path = strings.TrimPrefix(fields[3], "b/")
			}
		}
		chunk = append(chunk, line)
	}
	flush()
	return out
}
