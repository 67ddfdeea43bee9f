// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import "errors"

var (
	// ErrMalformedFrontmatter indicates a rule document whose YAML
	// header is missing, unparseable, or lacks a usable applies_to.
	ErrMalformedFrontmatter = errors.New("malformed rule frontmatter")

	// ErrNoRules indicates that no rule documents were found in any
	// search root.
	ErrNoRules = errors.New("no rules found")
)
