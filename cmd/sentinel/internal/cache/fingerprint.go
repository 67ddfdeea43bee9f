// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache stores checker verdicts content-addressed by the exact
// inputs that produced them, so unchanged work is never redone.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// PromptVersion participates in every fingerprint. Bumping it
// invalidates the entire cache, which is the intended lever whenever
// the prompt rendering changes in a way that could alter verdicts.
const PromptVersion = "3"

// Key carries everything that can influence a verdict. Two Keys with
// equal fields always address the same cache entry.
type Key struct {
	// Mode is the change-collection mode: diff, full-scan, or stream.
	Mode string

	// Granularity scopes the entry; unit-level entries use per-file.
	Granularity string

	RuleName string
	FilePath string
	RuleBody string

	// Diff is this file's diff chunk, empty in full content modes.
	Diff string

	// Suppressions is the verbatim suppression document. Editing it
	// invalidates every entry that embedded the old text.
	Suppressions string
}

// Fingerprint derives the content address for the key.
//
// The material layout is versioned by PromptVersion and must stay
// stable: header "version:mode:granularity", then marker-delimited
// sections for each remaining field. Markers prevent ambiguity when
// field contents contain each other's values.
func (k Key) Fingerprint() string {
	material := PromptVersion + ":" + k.Mode + ":" + k.Granularity +
		"\n---RULE_NAME---\n" + k.RuleName +
		"\n---FILE_PATH---\n" + k.FilePath +
		"\n---RULE_BODY---\n" + k.RuleBody +
		"\n---DIFF---\n" + k.Diff +
		"\n---SUPPRESSIONS---\n" + k.Suppressions

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
