// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// findingsEnvelope is the structured response shape.
type findingsEnvelope struct {
	Findings []Finding `json:"findings"`
}

// ParseVerdict interprets a backend response.
//
// # Description
//
// Preference order: an embedded JSON object with a findings array
// decides directly (empty array means allow); otherwise the sentinel
// phrases decide; otherwise the response is malformed. Parsing is
// deliberately lenient about surrounding prose since chat-style
// backends wrap their answers.
//
// # Outputs
//
//   - Verdict: the parsed judgment.
//   - error: ErrMalformedResponse when nothing decodable was found.
func ParseVerdict(req Request, response string) (Verdict, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return Verdict{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	if env, ok := extractFindings(trimmed); ok {
		if len(env.Findings) == 0 {
			return Verdict{Status: StatusAllow, Message: PhraseCompliant}, nil
		}
		for i := range env.Findings {
			if env.Findings[i].Rule == "" {
				env.Findings[i].Rule = req.RuleName
			}
			if env.Findings[i].File == "" {
				env.Findings[i].File = req.FilePath
			}
		}
		return Verdict{
			Status:   StatusDeny,
			Message:  renderFindings(env.Findings),
			Findings: env.Findings,
		}, nil
	}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, PhraseViolation):
		return Verdict{
			Status:  StatusDeny,
			Message: trimmed,
			Findings: []Finding{{
				Rule:     req.RuleName,
				File:     req.FilePath,
				Severity: "unknown",
				Message:  trimmed,
			}},
		}, nil
	case strings.Contains(lower, PhraseCompliant):
		return Verdict{Status: StatusAllow, Message: PhraseCompliant}, nil
	default:
		return Verdict{}, fmt.Errorf("%w: no findings object or sentinel phrase", ErrMalformedResponse)
	}
}

// extractFindings locates and decodes the first JSON object in the
// response that carries a findings key.
func extractFindings(response string) (findingsEnvelope, bool) {
	for start := strings.Index(response, "{"); start >= 0; {
		candidate := balancedObject(response[start:])
		if candidate == "" {
			break
		}
		if strings.Contains(candidate, "\"findings\"") {
			var env findingsEnvelope
			if err := json.Unmarshal([]byte(candidate), &env); err == nil {
				return env, true
			}
		}
		next := strings.Index(response[start+1:], "{")
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return findingsEnvelope{}, false
}

// balancedObject returns the shortest brace-balanced prefix of s, or
// "" when braces never balance. String literals are skipped so braces
// inside messages do not miscount.
func balancedObject(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// renderFindings builds the verdict message from itemized findings.
func renderFindings(findings []Finding) string {
	var b strings.Builder
	b.WriteString(PhraseViolation)
	for _, f := range findings {
		fmt.Fprintf(&b, "\n- [%s] %s: %s", f.Severity, f.File, f.Message)
	}
	return b.String()
}
