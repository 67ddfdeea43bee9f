// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch re-runs checks whenever the repository's change
// signature shifts.
package watch

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// EmptySignature is the signature of a clean work tree.
const EmptySignature = "EMPTY"

// Signature condenses the current change set into a comparable hash:
// SHA-256 over the sorted target paths and each target's diff. Equal
// signatures mean a re-run would re-check exactly the same content,
// so the watcher skips it.
func Signature(targets []string, diffs map[string]string) string {
	if len(targets) == 0 {
		return EmptySignature
	}

	sorted := append([]string(nil), targets...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, target := range sorted {
		h.Write([]byte(target))
		h.Write([]byte{0})
		h.Write([]byte(diffs[target]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
