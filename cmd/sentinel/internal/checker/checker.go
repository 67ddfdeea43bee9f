// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package checker defines the capability interface to the external
// rule-compliance judge and its backends.
package checker

import (
	"context"
	"errors"
)

// Verdict statuses.
const (
	StatusAllow = "allow"
	StatusDeny  = "deny"
)

var (
	// ErrUnavailable indicates the backend could not be invoked at
	// all (binary missing, no credentials).
	ErrUnavailable = errors.New("checker unavailable")

	// ErrMalformedResponse indicates the backend answered but the
	// response carried no recognizable verdict.
	ErrMalformedResponse = errors.New("malformed checker response")
)

// Request is one unit of judgment: one rule against one file.
type Request struct {
	RuleName string
	RuleBody string
	FilePath string

	// FileContent is the full file text, supplied in full-content
	// modes (full-scan, stream).
	FileContent string

	// Diff is this file's diff chunk, supplied in diff mode.
	Diff string

	// Suppressions is the project suppression document, verbatim.
	Suppressions string

	// Mode names the change-collection mode for prompt rendering.
	Mode string
}

// Finding is one concrete rule violation reported by the backend.
type Finding struct {
	Rule     string `json:"rule"`
	File     string `json:"file"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Verdict is the backend's judgment for a Request.
type Verdict struct {
	// Status is StatusAllow or StatusDeny.
	Status string

	// Message is the human-readable explanation.
	Message string

	// Findings itemizes violations; empty for allow verdicts.
	Findings []Finding
}

// Denied reports whether the verdict found violations.
func (v Verdict) Denied() bool { return v.Status == StatusDeny }

// Checker judges rule compliance for a single unit.
//
// # Thread Safety
//
// Implementations must be safe for concurrent Check calls; the
// execution engine fans units out across a worker pool.
type Checker interface {
	// Check judges the request. The context carries the per-unit
	// deadline; implementations must abandon work when it expires.
	// Backend failures surface as errors, never as deny verdicts.
	Check(ctx context.Context, req Request) (Verdict, error)
}
