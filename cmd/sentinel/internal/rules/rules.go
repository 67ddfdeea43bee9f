// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rules loads rule documents from layered rule directories and
// matches their applicability patterns against candidate files.
//
// A rule document is a Markdown file with YAML frontmatter. The only
// required key is applies_to, a basename glob pattern or list of
// patterns. Rules are identified by their path relative to the rule
// root, so rule sets from several roots can be merged with
// nearest-wins override semantics.
package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DependencyScopePythonImports is the only cross-file dependency scope
// currently understood by the target-pool expansion.
const DependencyScopePythonImports = "python_imports"

// Rule is a single loaded rule document.
//
// # Description
//
// Name is the document's path relative to its rule root (for example
// "readable_code/02_naming.md") and serves as the rule's identity.
// Patterns are basename globs from the applies_to frontmatter. Body is
// the document content with the frontmatter stripped.
//
// Rules are immutable after loading.
type Rule struct {
	Name     string
	Patterns []string
	Body     string

	// CrossFile widens the rule's candidate pool beyond the changed
	// files through the dependency scope below.
	CrossFile bool

	// DependencyScope names how cross-file targets are derived.
	// Only "python_imports" is supported; anything else disables
	// the expansion for this rule.
	DependencyScope string
}

// frontmatter is the YAML header of a rule document.
type frontmatter struct {
	AppliesTo       any    `yaml:"applies_to"`
	CrossFile       bool   `yaml:"cross_file"`
	DependencyScope string `yaml:"dependency_scope"`
}

// patterns normalizes applies_to into a string slice.
//
// applies_to may be a single string or a sequence of strings. Any other
// shape (or an empty result) is reported as malformed.
func (f *frontmatter) patterns() ([]string, error) {
	switch v := f.AppliesTo.(type) {
	case nil:
		return nil, fmt.Errorf("%w: applies_to missing", ErrMalformedFrontmatter)
	case string:
		if v == "" {
			return nil, fmt.Errorf("%w: applies_to is empty", ErrMalformedFrontmatter)
		}
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("%w: applies_to entries must be strings", ErrMalformedFrontmatter)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: applies_to is empty", ErrMalformedFrontmatter)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: applies_to has unsupported type %T", ErrMalformedFrontmatter, v)
	}
}

// splitFrontmatter separates the YAML header from the document body.
//
// Returns ok=false when the document has no frontmatter block at all.
func splitFrontmatter(content string) (header, body string, ok bool) {
	const delim = "---"

	// Normalize CRLF so the delimiter scan below only deals with \n.
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, delim+"\n") && content != delim {
		return "", content, false
	}

	rest := strings.TrimPrefix(content, delim+"\n")
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return "", content, false
	}

	header = rest[:idx]
	body = rest[idx+len("\n"+delim):]
	// Swallow the rest of the delimiter line plus one trailing newline.
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return header, body, true
}

// LoadDir loads all rule documents under rulesDir.
//
// # Description
//
// Walks the directory recursively collecting *.md files in sorted
// order. Documents without well-formed applies_to frontmatter are
// dropped and reported in the warnings slice; they never fail the load.
// A missing directory yields an empty rule set.
//
// # Outputs
//
//   - []Rule: loaded rules, keyed by root-relative path.
//   - []string: one warning per dropped document.
//   - error: non-nil only on I/O failures other than a missing root.
func LoadDir(rulesDir string) ([]Rule, []string, error) {
	info, err := os.Stat(rulesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("stat rules dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, nil
	}

	var paths []string
	err = filepath.WalkDir(rulesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking rules dir: %w", err)
	}
	sort.Strings(paths)

	var loaded []Rule
	var warnings []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading rule %s: %w", path, err)
		}

		rel, err := filepath.Rel(rulesDir, path)
		if err != nil {
			return nil, nil, fmt.Errorf("relativizing rule path: %w", err)
		}
		name := filepath.ToSlash(rel)

		rule, err := parseDocument(name, string(data))
		if err != nil {
			warnings = append(warnings,
				fmt.Sprintf("rule file %s has no usable applies_to frontmatter; add one to enable it", filepath.Base(path)))
			continue
		}
		loaded = append(loaded, rule)
	}

	return loaded, warnings, nil
}

// parseDocument parses one rule document into a Rule.
func parseDocument(name, content string) (Rule, error) {
	header, body, ok := splitFrontmatter(content)
	if !ok {
		return Rule{}, ErrMalformedFrontmatter
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrMalformedFrontmatter, err)
	}

	patterns, err := fm.patterns()
	if err != nil {
		return Rule{}, err
	}

	return Rule{
		Name:            name,
		Patterns:        patterns,
		Body:            body,
		CrossFile:       fm.CrossFile,
		DependencyScope: fm.DependencyScope,
	}, nil
}
