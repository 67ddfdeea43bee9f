// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import (
	"path"
	"path/filepath"
)

// Matches reports whether the rule applies to filePath.
//
// Patterns are matched case-sensitively against the path's base name
// only; directory components never participate. A pattern that fails
// to compile matches nothing.
func (r Rule) Matches(filePath string) bool {
	base := filepath.Base(filePath)
	for _, pattern := range r.Patterns {
		ok, err := path.Match(pattern, base)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// MatchingFiles filters candidates down to the files the rule applies
// to, preserving input order.
func (r Rule) MatchingFiles(candidates []string) []string {
	var out []string
	for _, candidate := range candidates {
		if r.Matches(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

// AnyFileMatches reports whether at least one rule in rules applies to
// at least one candidate file.
func AnyFileMatches(ruleSet []Rule, candidates []string) bool {
	for _, rule := range ruleSet {
		for _, candidate := range candidates {
			if rule.Matches(candidate) {
				return true
			}
		}
	}
	return false
}
