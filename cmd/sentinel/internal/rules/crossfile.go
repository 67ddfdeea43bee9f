// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import (
	"regexp"
	"sort"
	"strings"
)

// importLine matches the module reference of "import a.b" and
// "from a.b import c" statements at the start of a line.
var importLine = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)

// BuildReversePythonImportMap maps each file to the files that import
// it, derived from static import statements.
//
// # Description
//
// contents maps repository-relative paths to file text; only .py files
// participate. A file provides the module named by its path with
// slashes as dots and the .py suffix dropped ("pkg/util.py" provides
// "pkg.util"), and also its bare stem ("util") so flat-layout imports
// resolve. An import of "pkg.util.helpers" falls back through its
// prefixes, matching the longest provider.
//
// # Outputs
//
//   - map[string][]string: provider path to sorted importer paths.
//     Files nobody imports are absent.
func BuildReversePythonImportMap(contents map[string]string) map[string][]string {
	providers := make(map[string]string)
	for path := range contents {
		if !strings.HasSuffix(path, ".py") {
			continue
		}
		dotted := strings.ReplaceAll(strings.TrimSuffix(path, ".py"), "/", ".")
		providers[dotted] = path
		stem := dotted
		if idx := strings.LastIndex(dotted, "."); idx >= 0 {
			stem = dotted[idx+1:]
		}
		// Bare stems only claim a module name nobody else provides
		// with a full dotted path.
		if _, taken := providers[stem]; !taken {
			providers[stem] = path
		}
	}

	reverse := make(map[string]map[string]struct{})
	for importer, content := range contents {
		if !strings.HasSuffix(importer, ".py") {
			continue
		}
		for _, m := range importLine.FindAllStringSubmatch(content, -1) {
			module := m[1]
			if module == "" {
				module = m[2]
			}
			provider := resolveModule(module, providers)
			if provider == "" || provider == importer {
				continue
			}
			if reverse[provider] == nil {
				reverse[provider] = make(map[string]struct{})
			}
			reverse[provider][importer] = struct{}{}
		}
	}

	out := make(map[string][]string, len(reverse))
	for provider, importers := range reverse {
		list := make([]string, 0, len(importers))
		for importer := range importers {
			list = append(list, importer)
		}
		sort.Strings(list)
		out[provider] = list
	}
	return out
}

// resolveModule finds the providing file for a dotted module name,
// trying the full name first and then successively shorter prefixes.
func resolveModule(module string, providers map[string]string) string {
	for {
		if path, ok := providers[module]; ok {
			return path
		}
		idx := strings.LastIndex(module, ".")
		if idx < 0 {
			return ""
		}
		module = module[:idx]
	}
}

// ExpandReverseDependencies returns the changed set widened with every
// file that transitively imports a changed file.
//
// The result is sorted and deduplicated. Files absent from contents
// pass through unchanged.
func ExpandReverseDependencies(changed []string, contents map[string]string) []string {
	reverse := BuildReversePythonImportMap(contents)

	seen := make(map[string]struct{})
	queue := append([]string(nil), changed...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, ok := seen[current]; ok {
			continue
		}
		seen[current] = struct{}{}
		queue = append(queue, reverse[current]...)
	}

	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// TargetPool computes the candidate files a rule should be checked
// against.
//
// For ordinary rules this is just the changed files. Rules marked
// cross_file with the python_imports dependency scope additionally
// pull in reverse importers of the changed files; any other scope
// leaves the pool unexpanded.
func TargetPool(rule Rule, changed []string, contents map[string]string) []string {
	if !rule.CrossFile || rule.DependencyScope != DependencyScopePythonImports {
		return changed
	}
	return ExpandReverseDependencies(changed, contents)
}
