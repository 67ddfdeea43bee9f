// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"fmt"
	"strings"
)

// Response sentinels. The prompt instructs the backend to use these
// phrases, and verdict parsing falls back to them when no structured
// findings are present.
const (
	PhraseCompliant = "no violations found"
	PhraseViolation = "[action required]"
)

// BuildPrompt renders the judgment prompt for a request.
//
// The layout is deliberately rigid: a task preamble, the rule
// document, the change content, the suppression notes, and the
// response contract. Anything that alters verdicts belongs in the
// cache fingerprint, so the prompt is a pure function of the request.
func BuildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a code review assistant checking one file against one project rule.\n\n")
	fmt.Fprintf(&b, "## Rule: %s\n\n%s\n\n", req.RuleName, strings.TrimSpace(req.RuleBody))

	if req.Diff != "" {
		fmt.Fprintf(&b, "## Changed file: %s\n\nReview only the changed lines below.\n\n```diff\n%s\n```\n\n",
			req.FilePath, strings.TrimRight(req.Diff, "\n"))
	} else {
		fmt.Fprintf(&b, "## File: %s\n\nReview the full file content below.\n\n```\n%s\n```\n\n",
			req.FilePath, strings.TrimRight(req.FileContent, "\n"))
	}

	if strings.TrimSpace(req.Suppressions) != "" {
		fmt.Fprintf(&b, "## Suppressions\n\nDo not report issues the notes below explicitly suppress:\n\n%s\n\n",
			strings.TrimSpace(req.Suppressions))
	}

	fmt.Fprintf(&b, "## Response contract\n\n")
	fmt.Fprintf(&b, "If the file complies with the rule, respond with exactly: %s\n", PhraseCompliant)
	fmt.Fprintf(&b, "If it violates the rule, start your response with %s followed by a JSON object:\n", PhraseViolation)
	fmt.Fprintf(&b, "{\"findings\": [{\"rule\": %q, \"file\": %q, \"severity\": \"critical|high|medium|low|info\", \"message\": \"...\"}]}\n",
		req.RuleName, req.FilePath)

	return b.String()
}
